// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package link

import (
	"context"
	"fmt"
)

func (r RFCOMMOpener) Open(ctx context.Context) (Port, error) {
	return nil, fmt.Errorf("%w: RFCOMM sockets require linux, bind %s to a tty instead", ErrUnavailable, r.Address)
}
