package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manash/pixshop/pkg/models"
)

// fakeRedis is an in-memory stand-in for a redis server, shared by every
// connection the pool dials.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
	cmds []string
}

type fakeConn struct {
	srv *fakeRedis
}

func (c *fakeConn) Close() error                      { return nil }
func (c *fakeConn) Err() error                        { return nil }
func (c *fakeConn) Send(string, ...interface{}) error { return nil }
func (c *fakeConn) Flush() error                      { return nil }
func (c *fakeConn) Receive() (interface{}, error)     { return nil, nil }
func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	if cmd == "" {
		return nil, nil
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.cmds = append(c.srv.cmds, cmd)

	key := fmt.Sprint(args[0])
	switch cmd {
	case "GET":
		v, ok := c.srv.data[key]
		if !ok {
			return nil, nil
		}
		return v, nil
	case "SET":
		c.srv.data[key] = args[1].([]byte)
		return "OK", nil
	case "DEL":
		if _, ok := c.srv.data[key]; !ok {
			return int64(0), nil
		}
		delete(c.srv.data, key)
		return int64(1), nil
	}
	return nil, fmt.Errorf("unsupported command %s", cmd)
}

func testRedisSlot(t *testing.T, prefix string) (*RedisSlot, *fakeRedis) {
	t.Helper()
	srv := &fakeRedis{data: make(map[string][]byte)}
	pool := &redis.Pool{
		MaxIdle: 1,
		Dial: func() (redis.Conn, error) {
			return &fakeConn{srv: srv}, nil
		},
	}
	slot := NewRedisSlotWithPool(pool, prefix)
	t.Cleanup(func() { slot.Close() })
	return slot, srv
}

func TestSlots_Contract(t *testing.T) {
	slots := map[string]func(t *testing.T) Slot{
		"memory": func(t *testing.T) Slot { return NewMemorySlot() },
		"file": func(t *testing.T) Slot {
			s, err := NewFileSlot(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Slot {
			s, cleanup := testStore(t)
			t.Cleanup(cleanup)
			return s
		},
		"redis": func(t *testing.T) Slot {
			s, _ := testRedisSlot(t, "")
			return s
		},
	}

	for name, open := range slots {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			slot := open(t)

			_, err := slot.Get(ctx, SessionKey)
			assert.ErrorIs(t, err, ErrSlotEmpty)

			require.NoError(t, slot.Put(ctx, SessionKey, []byte("one")))
			require.NoError(t, slot.Put(ctx, SessionKey, []byte("two")))

			got, err := slot.Get(ctx, SessionKey)
			require.NoError(t, err)
			assert.Equal(t, "two", string(got))

			require.NoError(t, slot.Delete(ctx, SessionKey))
			_, err = slot.Get(ctx, SessionKey)
			assert.ErrorIs(t, err, ErrSlotEmpty)

			assert.NoError(t, slot.Delete(ctx, SessionKey), "deleting a missing key")
		})
	}
}

func TestMemorySlot_CopiesValues(t *testing.T) {
	ctx := context.Background()
	slot := NewMemorySlot()

	value := []byte("abc")
	require.NoError(t, slot.Put(ctx, "k", value))
	value[0] = 'X'

	got, err := slot.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileSlot_WritesJSONFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	slot, err := NewFileSlot(dir)
	require.NoError(t, err)

	require.NoError(t, slot.Put(ctx, SessionKey, []byte(`{"cursor":-1}`)))

	data, err := os.ReadFile(filepath.Join(dir, SessionKey+".json"))
	require.NoError(t, err)
	assert.Equal(t, `{"cursor":-1}`, string(data))

	matches, err := filepath.Glob(filepath.Join(dir, ".slot-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files left behind")
}

func TestFileSlot_SanitizesKey(t *testing.T) {
	slot, err := NewFileSlot(t.TempDir())
	require.NoError(t, err)

	p := slot.Path("../../etc/passwd")
	assert.Equal(t, slot.dir, filepath.Dir(p))
}

func TestRedisSlot_UsesPrefix(t *testing.T) {
	ctx := context.Background()
	slot, srv := testRedisSlot(t, "test:")

	require.NoError(t, slot.Put(ctx, SessionKey, []byte("v")))

	srv.mu.Lock()
	_, ok := srv.data["test:"+SessionKey]
	srv.mu.Unlock()
	assert.True(t, ok, "value stored without prefix")
}

func TestRedisSlot_DefaultPrefix(t *testing.T) {
	slot, _ := testRedisSlot(t, "")
	assert.Equal(t, DefaultRedisPrefix+"k", slot.key("k"))
}

func TestOpenSlot(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     SlotConfig
		want    string
		wantErr bool
	}{
		{"default is file", SlotConfig{Dir: dir}, "*session.FileSlot", false},
		{"file", SlotConfig{Backend: BackendFile, Dir: dir}, "*session.FileSlot", false},
		{"memory", SlotConfig{Backend: BackendMemory}, "*session.MemorySlot", false},
		{"sqlite", SlotConfig{Backend: BackendSQLite, SQLitePath: filepath.Join(dir, "s.db")}, "*session.SQLiteSlot", false},
		{"redis", SlotConfig{Backend: BackendRedis, RedisAddr: "localhost:6379"}, "*session.RedisSlot", false},
		{"unknown", SlotConfig{Backend: "etcd"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := OpenSlot(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer slot.Close()
			assert.Equal(t, tt.want, fmt.Sprintf("%T", slot))
		})
	}
}

func TestDecode_EmptySession(t *testing.T) {
	s, err := Decode([]byte(`{"version":1,"entries":[],"cursor":-1}`))
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
	assert.Equal(t, -1, s.Cursor)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty data":      `{"entries":[{"name":"a","mimeType":"image/png","data":""}],"cursor":0}`,
		"no mime type":    `{"entries":[{"name":"a","data":"QQ=="}],"cursor":0}`,
		"negative cursor": `{"entries":[{"name":"a","mimeType":"image/png","data":"QQ=="}],"cursor":-1}`,
		"empty with zero": `{"entries":[],"cursor":0}`,
		"version zero":    `{"version":0,"entries":[],"cursor":-1}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			assert.True(t, errors.Is(err, ErrMalformedSnapshot), "Decode() error = %v", err)
		})
	}
}

func TestEncode_WritesVersion(t *testing.T) {
	a := artifact(t, "A")
	data, err := Encode(Session{Entries: []*models.Artifact{a}, Cursor: 0})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 1`)
	assert.Contains(t, string(data), `"mimeType": "image/png"`)

	_, err = Encode(Session{Entries: []*models.Artifact{a}, Cursor: 4})
	assert.Error(t, err)
}
