package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			if advice := errs.Advice(err); advice != "" {
				fmt.Fprintln(os.Stderr, "Hint:", advice)
			}
		}
		os.Exit(1)
	}
}
