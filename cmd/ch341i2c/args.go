package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseAddr accepts 0x40, 64 or 0o100.
func parseAddr(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > 0x7F {
		return 0, errors.Errorf("bad 7-bit address %q", s)
	}
	return uint8(v), nil
}

func parseLen(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.Errorf("bad length %q", s)
	}
	return n, nil
}

// parseBytes joins hex arguments: "fe", "0x01 02" and "0102" all work.
func parseBytes(args []string) ([]byte, error) {
	var sb strings.Builder
	for _, a := range args {
		for _, f := range strings.Fields(a) {
			f = strings.TrimPrefix(strings.ToLower(f), "0x")
			if len(f)%2 == 1 {
				f = "0" + f
			}
			sb.WriteString(f)
		}
	}
	b, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, errors.Wrap(err, "bad hex bytes")
	}
	return b, nil
}

func formatBytes(b []byte) string {
	return fmt.Sprintf("% x", b)
}
