package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

type fakeClient struct {
	mu        sync.Mutex
	hashes    map[string]interface{}
	published []string
}

func (c *fakeClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes == nil {
		c.hashes = map[string]interface{}{}
	}
	if len(values) == 1 {
		for k, v := range values[0].(map[string]interface{}) {
			c.hashes[k] = v
		}
	} else {
		for i := 0; i+1 < len(values); i += 2 {
			c.hashes[values[i].(string)] = values[i+1]
		}
	}
	return redis.NewIntResult(int64(len(values)), nil)
}

func (c *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, channel)
	return redis.NewIntResult(0, nil)
}

func (c *fakeClient) Field(k string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashes[k]
}

func (c *fakeClient) Published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published...)
}

type fakeLink struct {
	mu    sync.Mutex
	state link.ConnectionState
}

func (l *fakeLink) State() link.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLink) Set(s link.ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

func Test_stateFields(t *testing.T) {
	s := vehicle.Initial()
	s.RPM = 5200
	s.EngineRunning = true
	fields := StateFields(s, vehicle.DefaultLimits)
	assert.Equal(t, "true", fields["engine_running"])
	assert.Equal(t, 5200, fields["rpm"])
	assert.Equal(t, "high", fields["rpm_band"])
	assert.Equal(t, "OK", fields["rpm_status"])
	assert.Equal(t, "true", fields["handbrake"])
}

func Test_publisherMirrorsChanges(t *testing.T) {
	client := &fakeClient{}
	store := vehicle.NewStore(vehicle.DefaultLimits)
	p := New(client, "vehicle", store, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return client.Field("gear") == 1 }, time.Second, time.Millisecond)

	store.Apply("GEAR: 4")
	require.Eventually(t, func() bool { return client.Field("gear") == 4 }, time.Second, time.Millisecond)

	p.ConnectionChanged(true, "connected: /dev/ttyACM0")
	require.Eventually(t, func() bool { return client.Field("connected") == "true" }, time.Second, time.Millisecond)
	assert.Equal(t, "", client.Field("port"))
	assert.Nil(t, client.Field("connection"))
	assert.Contains(t, client.Published(), "vehicle connection")
	assert.Contains(t, client.Published(), "vehicle state")
}

func Test_publisherWritesPort(t *testing.T) {
	client := &fakeClient{}
	store := vehicle.NewStore(vehicle.DefaultLimits)
	l := &fakeLink{}
	p := New(client, "vehicle", store, 5*time.Millisecond, nil)
	p.Track(l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	l.Set(link.ConnectionState{Status: link.Connected, Port: "/dev/ttyUSB1"})
	p.ConnectionChanged(true, "connected: /dev/ttyUSB1")
	require.Eventually(t, func() bool { return client.Field("port") == "/dev/ttyUSB1" }, time.Second, time.Millisecond)
	assert.Equal(t, "true", client.Field("connected"))

	// The port is taken when the change happens, not when it is published.
	l.Set(link.ConnectionState{Status: link.Disconnected, LastError: "read failed"})
	p.ConnectionChanged(false, "connection lost: read failed")
	require.Eventually(t, func() bool { return client.Field("connected") == "false" }, time.Second, time.Millisecond)
	assert.Equal(t, "", client.Field("port"))
}
