package exporters

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/host"
)

var errNoHostname = errors.New("could not identify hostname")

// Resolve name of this host, attached to every sample reported.
func ResolveHostname(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info.Hostname != "" {
		return info.Hostname, nil
	}
	name, herr := os.Hostname()
	if herr != nil {
		return "", fmt.Errorf("%w: %w", errNoHostname, herr)
	}
	if name == "" {
		return "", errNoHostname
	}
	return name, nil
}
