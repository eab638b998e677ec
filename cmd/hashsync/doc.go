// Command hashsync is the operator CLI. It opens the hashsync database
// directly, so it works with or without hashsyncd running; SQLite busy
// retries keep the two safe side by side.
package main
