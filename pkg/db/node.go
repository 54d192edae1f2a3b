package db

import (
	"hash/fnv"
	"os"
)

// NodeID maps name onto the 10-bit snowflake node range.
func NodeID(name string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum32() % 1024)
}

func hostname() string {
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "localhost"
}
