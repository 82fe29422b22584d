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
package manager

import (
	"fmt"

	par "github.com/vmware/vmware-go-kvlease/clientlibrary/partition"
)

// ErrUnsupportedLease is returned when a lease handed in by the host framework was not created
// by this package's store.
type ErrUnsupportedLease struct {
	Type string
}

func (e ErrUnsupportedLease) Error() string {
	return fmt.Sprintf("unsupported lease type %s, expected *partition.Lease", e.Type)
}

// AsLease converts a framework lease handle into the concrete lease type.
func AsLease(lease par.BaseLease) (*par.Lease, error) {
	if l, ok := lease.(*par.Lease); ok && l != nil {
		return l, nil
	}
	return nil, ErrUnsupportedLease{Type: fmt.Sprintf("%T", lease)}
}
