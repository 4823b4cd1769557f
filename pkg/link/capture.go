// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"os"
)

// FileOpener appends the command stream to a regular file instead of a
// device. Used for dry runs.
type FileOpener struct {
	Path string
}

func (f FileOpener) String() string {
	return "file:" + f.Path
}

func (f FileOpener) Open(ctx context.Context) (Port, error) {
	file, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return file, nil
}
