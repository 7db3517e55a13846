package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorfusion/framing"
	"github.com/c360/sensorfusion/messages"
)

// recorder keeps each Write call separately.
type recorder struct {
	writes [][]byte
}

func (r *recorder) Write(p []byte) (int, error) {
	r.writes = append(r.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (r *recorder) joined() []byte {
	return bytes.Join(r.writes, nil)
}

func newSim(t *testing.T, opts Options) *Simulator {
	t.Helper()
	if opts.MinChunk == 0 {
		opts.MinChunk = 1
	}
	if opts.MaxChunk == 0 {
		opts.MaxChunk = 16
	}
	sim, err := NewSimulator(opts, 42)
	require.NoError(t, err)
	sim.sleep = func(time.Duration) {}
	return sim
}

func decodeAll(t *testing.T, data []byte) []messages.TabletEnvelope {
	t.Helper()
	var out []messages.TabletEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var env messages.TabletEnvelope
		require.NoError(t, dec.Decode(&env))
		out = append(out, env)
	}
	return out
}

func TestParseCase(t *testing.T) {
	for _, in := range []string{"1", "atomic"} {
		c, err := ParseCase(in)
		require.NoError(t, err)
		assert.Equal(t, CaseAtomic, c)
	}
	c, err := ParseCase("4")
	require.NoError(t, err)
	assert.Equal(t, CaseCoalesced, c)

	_, err = ParseCase("5")
	assert.Error(t, err)

	cases, err := parseCases("1, fragmented,3")
	require.NoError(t, err)
	assert.Equal(t, []Case{CaseAtomic, CaseFragmented, CaseIncomplete}, cases)
}

func TestNewSimulator_Validation(t *testing.T) {
	_, err := NewSimulator(Options{MinChunk: 0, MaxChunk: 4}, 1)
	assert.Error(t, err)
	_, err = NewSimulator(Options{MinChunk: 5, MaxChunk: 4}, 1)
	assert.Error(t, err)
}

func TestSend_ResCyclesAndSeqAdvances(t *testing.T) {
	sim := newSim(t, Options{})
	var buf recorder

	var res []int
	var seqs []uint64
	for i := 0; i < 5; i++ {
		r, err := sim.Send(&buf, CaseAtomic)
		require.NoError(t, err)
		res = append(res, r.Res)
		seqs = append(seqs, r.SeqNos...)
	}
	assert.Equal(t, []int{0, 1, 2, 99, 0}, res)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)

	envs := decodeAll(t, buf.joined())
	require.Len(t, envs, 5)
	assert.Equal(t, 99, envs[3].Res)
	assert.Equal(t, "hello_tablet", envs[0].Payload.Note)
}

func TestSend_Fragmented(t *testing.T) {
	sim := newSim(t, Options{MinChunk: 3, MaxChunk: 6, Jitter: time.Millisecond})
	var buf recorder

	r, err := sim.Send(&buf, CaseFragmented)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Chunks, 3)
	assert.LessOrEqual(t, r.Chunks, 6)
	assert.Len(t, buf.writes, r.Chunks)
	require.Len(t, decodeAll(t, buf.joined()), 1)
}

func TestSend_Incomplete(t *testing.T) {
	sim := newSim(t, Options{})
	var buf recorder

	r, err := sim.Send(&buf, CaseIncomplete)
	require.NoError(t, err)
	data := buf.joined()
	assert.Equal(t, r.Bytes, len(data))
	assert.False(t, json.Valid(data))
	assert.Equal(t, byte('{'), data[0])
}

func TestSend_CoalescedWithNewline(t *testing.T) {
	sim := newSim(t, Options{Newline: true})
	var buf recorder

	r, err := sim.Send(&buf, CaseCoalesced)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, r.SeqNos)
	require.Len(t, buf.writes, 1)
	assert.Equal(t, 2, strings.Count(string(buf.writes[0]), "\n"))

	envs := decodeAll(t, buf.joined())
	require.Len(t, envs, 2)
	assert.Equal(t, envs[0].Res, envs[1].Res)
	assert.Equal(t, uint64(2), envs[1].SeqNo)

	r, err = sim.Send(&buf, CaseAtomic)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, r.SeqNos)
}

func TestSplitChunks(t *testing.T) {
	data := []byte("abcdefghij")
	tests := []struct {
		n    int
		want []string
	}{
		{1, []string{"abcdefghij"}},
		{3, []string{"abcd", "efg", "hij"}},
		{10, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}},
		{16, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.n), func(t *testing.T) {
			var got []string
			for _, c := range splitChunks(data, tt.n) {
				got = append(got, string(c))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// Every case the simulator produces must be recoverable by the scanner;
// an incomplete frame is abandoned once the next frame arrives.
func TestSimulatorOutputScans(t *testing.T) {
	sim := newSim(t, Options{MinChunk: 1, MaxChunk: 16})
	var buf recorder
	sent := []Case{CaseAtomic, CaseFragmented, CaseCoalesced, CaseIncomplete, CaseAtomic}
	for _, c := range sent {
		_, err := sim.Send(&buf, c)
		require.NoError(t, err)
	}

	sc := framing.NewScanner(framing.Config{})
	var got []uint64
	for _, w := range buf.writes {
		sc.Write(w)
		for {
			frame, ok := sc.Next()
			if !ok {
				break
			}
			var env messages.TabletEnvelope
			require.NoError(t, json.Unmarshal(frame, &env))
			got = append(got, env.SeqNo)
		}
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 6}, got)
}

func TestRun_ScriptedCases(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	cfg := cliConfig{
		Host:    "127.0.0.1",
		Port:    port,
		Cases:   "1,4",
		Repeat:  2,
		Seed:    7,
		Options: Options{MinChunk: 1, MaxChunk: 4},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, run(context.Background(), cfg, strings.NewReader(""), logger))

	select {
	case data := <-received:
		assert.Len(t, decodeAll(t, data), 6)
	case <-time.After(2 * time.Second):
		t.Fatal("no data received")
	}
}
