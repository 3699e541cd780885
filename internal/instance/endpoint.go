package instance

import (
	"net"
	"os"
	"strconv"
)

// dockerEnvFile exists inside every Docker container.
var dockerEnvFile = "/.dockerenv"

// PublishedHost is the hostname that reaches ports published by sibling containers.
// From inside a container that is the Docker host, not localhost.
func PublishedHost() string {
	if _, err := os.Stat(dockerEnvFile); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// RedisURL is the URL for an instance's Redis published on port.
func RedisURL(port int) string {
	return "redis://" + net.JoinHostPort(PublishedHost(), strconv.Itoa(port))
}
