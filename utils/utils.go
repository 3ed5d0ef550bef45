package utils

import (
	"crypto/rand"
	"math"
	"math/big"
	"os"
	"strings"
	"time"
)

// DefaultOutputDir returns the working directory, falling back to the temp dir.
func DefaultOutputDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return os.TempDir()
	}
	return wd
}

func LookupEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}

func RandInt() int {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return int(seed.Int64())
}

// Wait returns the backoff before the i-th retry: i^2 seconds plus up to 9 seconds of jitter.
func Wait(i int) time.Duration {
	sleep := math.Pow(float64(i), 2) + float64(RandInt()%10)
	return time.Duration(sleep) * time.Second
}

// TrimToNil trims spaces and newlines (CR/LF) and returns nil for blank input.
func TrimToNil(str *string) *string {
	if str == nil {
		return nil
	}
	s := strings.TrimSpace(*str)
	if s == "" {
		return nil
	}
	return &s
}
