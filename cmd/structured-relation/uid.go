package main

import (
	"fmt"

	"github.com/spf13/cast"
)

func parseUID(arg string) (int64, error) {
	uid, err := cast.ToInt64E(arg)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("uid must be a positive integer, got %q", arg)
	}
	return uid, nil
}
