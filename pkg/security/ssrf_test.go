package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURLBlockedAddresses(t *testing.T) {
	t.Parallel()

	blocked := []string{
		"http://127.0.0.1/",
		"http://127.0.0.1:8080/admin",
		"http://0.0.0.0/",
		"http://10.1.2.3/",
		"http://172.16.0.1/",
		"http://172.31.255.254/",
		"http://192.168.1.1/",
		"http://169.254.169.254/latest/meta-data/",
		"http://100.64.0.1/",
		"http://192.0.0.1/",
		"http://192.0.2.10/",
		"http://198.18.0.1/",
		"http://198.51.100.7/",
		"http://203.0.113.9/",
		"http://224.0.0.1/",
		"http://240.0.0.1/",
		"http://255.255.255.255/",
		"http://[::1]/",
		"http://[::]/",
		"http://[fc00::1]/",
		"http://[fd12:3456::1]/",
		"http://[fe80::1]/",
		"http://[ff02::1]/",
		"http://[::ffff:127.0.0.1]/",
		"http://[::ffff:10.0.0.1]/",
	}
	for _, url := range blocked {
		assert.Error(t, ValidateURL(context.Background(), url), "expected %s to be blocked", url)
	}
}

func TestValidateURLBlockedHostnames(t *testing.T) {
	t.Parallel()

	blocked := []string{
		"http://localhost/",
		"http://localhost:3001/mcp",
		"http://LOCALHOST/",
		"http://localhost.localdomain/",
		"http://foo.local/",
		"http://db.internal/",
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://metadata.goog/",
		"http://kubernetes.default/",
		"http://kubernetes.default.svc/",
		"http://host.docker.internal/",
	}
	for _, url := range blocked {
		assert.Error(t, ValidateURL(context.Background(), url), "expected %s to be blocked", url)
	}
}

func TestValidateURLBlockedSchemes(t *testing.T) {
	t.Parallel()

	for _, url := range []string{
		"ftp://example.com/",
		"file:///etc/passwd",
		"gopher://example.com/",
		"://bad",
	} {
		assert.Error(t, ValidateURL(context.Background(), url), "expected %s to be blocked", url)
	}
}

func TestValidateURLAllowsPublicAddresses(t *testing.T) {
	t.Parallel()

	allowed := []string{
		"http://8.8.8.8/",
		"https://1.1.1.1:8443/mcp",
		"http://[2001:4860:4860::8888]/",
		"http://93.184.216.34/tools",
	}
	for _, url := range allowed {
		assert.NoError(t, ValidateURL(context.Background(), url), "expected %s to be allowed", url)
	}
}

func TestValidateURLAllowsUnresolvableHost(t *testing.T) {
	t.Parallel()

	// Hosts that only resolve inside a deployment network are allowed
	// with a warning.
	err := ValidateURL(context.Background(), "http://backend-a.compose-net-that-does-not-exist.example:3001/")
	assert.NoError(t, err)
}

func TestValidateURLRejectsEmptyHost(t *testing.T) {
	t.Parallel()

	assert.Error(t, ValidateURL(context.Background(), "http:///path"))
}
