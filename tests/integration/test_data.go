package integration

import (
	"fmt"
	"sync/atomic"
	"time"
)

var userCounter atomic.Int64

// TestUser generates unique test user credentials
func TestUser(suffix string) (username, email, password string) {
	n := userCounter.Add(1)
	ts := time.Now().Unix()
	username = fmt.Sprintf("test-%d-%d-%s", ts, n, suffix)
	email = fmt.Sprintf("test-%d-%d-%s@example.com", ts, n, suffix)
	password = "TestPassword123!"
	return
}
