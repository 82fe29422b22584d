/*
 * Copyright (c) 2018 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chk "github.com/vmware/vmware-go-kvlease/clientlibrary/checkpoint"
)

func run(t *testing.T, mr *miniredis.Miniredis, host string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})

	base := []string{"--key-prefix", "events", "--processor-hostname", host, "--log-level", "error"}
	if mr != nil {
		base = append(base, "--store-hostname", mr.Host(), "--port", mr.Port())
	}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestBootstrapAndList(t *testing.T) {
	mr := miniredis.RunT(t)

	out, err := run(t, mr, "h1", "bootstrap", "--partitions", "0,1", "--partitions", "2")
	require.NoError(t, err)
	assert.Equal(t, "bootstrapped 3 partitions\n", out)
	assert.Equal(t, ",0,0", mr.HGet("events_lease", "2"))
	assert.Equal(t, "-1,0", mr.HGet("events", "1"))

	out, err = run(t, mr, "h1", "leases")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "PARTITION"))
	assert.True(t, strings.HasPrefix(lines[1], "0 "))
	assert.True(t, strings.HasPrefix(lines[3], "2 "))

	out, err = run(t, mr, "h1", "checkpoints")
	require.NoError(t, err)
	assert.Contains(t, out, "OFFSET")
	assert.Contains(t, out, "-1")
}

func TestAcquireRenewAndTakeover(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := run(t, mr, "h1", "bootstrap", "--partitions", "0")
	require.NoError(t, err)

	out, err := run(t, mr, "h1", "acquire", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "acquire 0: ok (epoch 1")
	assert.True(t, strings.HasPrefix(mr.HGet("events_lease", "0"), "h1,1,"))

	out, err = run(t, mr, "h1", "renew", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "renew 0: ok")

	// acquire takes over even while h1 holds the lease
	out, err = run(t, mr, "h2", "acquire", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "acquire 0: ok")
	assert.True(t, strings.HasPrefix(mr.HGet("events_lease", "0"), "h2,2,"))

	out, err = run(t, mr, "h1", "renew", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "renew 0: refused")
}

func TestRenewMissingLease(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := run(t, mr, "h1", "renew", "7")
	assert.ErrorContains(t, err, "no lease stored for partition 7")
}

func TestCheckpointAndTeardown(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := run(t, mr, "h1", "bootstrap", "--partitions", "0,1")
	require.NoError(t, err)

	out, err := run(t, mr, "h1", "checkpoint", "0", "42", "7")
	require.NoError(t, err)
	assert.Equal(t, "checkpoint 0 set to 42,7\n", out)
	assert.Equal(t, "42,7", mr.HGet("events", "0"))

	_, err = run(t, mr, "h1", "checkpoint", "0", "42", "x")
	assert.ErrorContains(t, err, "invalid sequence number")

	_, err = run(t, mr, "h2", "acquire", "1")
	require.NoError(t, err)

	// partition 1 is held by h2, so its lease and checkpoint both survive
	out, err = run(t, mr, "h1", "teardown")
	require.NoError(t, err)
	assert.Equal(t, "tore down 1 partitions\nkept 1 partitions held by other hosts: 1\n", out)
	assert.True(t, strings.HasPrefix(mr.HGet("events_lease", "1"), "h2,"))
	assert.Equal(t, "-1,0", mr.HGet("events", "1"))
	assert.Equal(t, "", mr.HGet("events_lease", "0"))
	assert.Equal(t, "", mr.HGet("events", "0"))

	// the holder itself may tear its partition down
	out, err = run(t, mr, "h2", "teardown", "--partitions", "1")
	require.NoError(t, err)
	assert.Equal(t, "tore down 1 partitions\n", out)
	assert.False(t, mr.Exists("events"))
	assert.False(t, mr.Exists("events_lease"))
}

func TestDisconnectedStore(t *testing.T) {
	_, err := run(t, nil, "h1", "leases")
	assert.ErrorIs(t, err, chk.ErrNotConnected)
}

func TestMissingKeyPrefix(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "error", "leases"})
	assert.ErrorContains(t, cmd.Execute(), "key-prefix is required")
}

func TestSplitPartitions(t *testing.T) {
	ids, err := splitPartitions([]string{"a, b", "", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	_, err = splitPartitions([]string{" , "})
	assert.Error(t, err)
}
