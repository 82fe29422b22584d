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
package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.UnixMilli(1_000_000)
	clock := NewFakeClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, int64(1_001_500), NowMillis(clock))

	clock.Set(start)
	assert.Equal(t, int64(1_000_000), NowMillis(clock))
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	now := SystemClock{}.Now()
	assert.False(t, now.Before(before))
}

func TestMustNewUUID(t *testing.T) {
	a := MustNewUUID()
	b := MustNewUUID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestAWSErrCode(t *testing.T) {
	err := awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table missing", nil)
	assert.Equal(t, dynamodb.ErrCodeResourceNotFoundException, AWSErrCode(err))
	assert.Equal(t, dynamodb.ErrCodeResourceNotFoundException, AWSErrCode(fmt.Errorf("describe: %w", err)))
	assert.Equal(t, "", AWSErrCode(errors.New("plain")))
	assert.Equal(t, "", AWSErrCode(nil))
}
