// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package local

import (
	"context"
	"errors"
	"testing"
)

func TestClient(t *testing.T) {
	c := NewClient()
	if _, _, err := c.Send("S0"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Send before Start error = %v, want ErrNotStarted", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(ctx context.Context, frame string) (string, bool) {
			return frame + "!", frame != "N"
		})
	}()
	<-c.Ready()

	if reply, ok, err := c.Send("S0"); err != nil || !ok || reply != "S0!" {
		t.Errorf("Send(S0) = %q, %v, %v", reply, ok, err)
	}
	if _, ok, err := c.Send("N"); err != nil || ok {
		t.Errorf("Send(N) ok = %v, err = %v; want silent", ok, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() = %v", err)
	}
	if _, _, err := c.Send("S0"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Send after stop error = %v, want ErrNotStarted", err)
	}
}
