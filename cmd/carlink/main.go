// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/toitlang/carlink/cmd/carlink/commands"
)

var (
	version = "v0.3.0"
)

var buildDate = "unknown"
var buildMode = "development"

func main() {
	info := commands.Info{
		Date:    buildDate,
		Version: version,
		Release: buildMode == "release",
	}
	ctx := commands.SetInfo(context.Background(), info)
	cmd := commands.CarlinkCmd(info)
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
