package connectors

import (
	"fmt"

	"go-syncbridge/internal/config"
)

// Pair holds the two platform sides being reconciled.
type Pair struct {
	A Adapter
	B Adapter
}

// NewAdapterPair builds both platform adapters from configuration.
func NewAdapterPair(cfg *config.Config) (*Pair, error) {
	a, err := buildAdapter("platform-a", cfg.PlatformAType, cfg.PlatformAURL, cfg.PlatformAToken, cfg.PlatformADSN)
	if err != nil {
		return nil, err
	}
	b, err := buildAdapter("platform-b", cfg.PlatformBType, cfg.PlatformBURL, cfg.PlatformBToken, cfg.PlatformBDSN)
	if err != nil {
		return nil, err
	}
	return &Pair{A: a, B: b}, nil
}

func buildAdapter(name, adapterType, baseURL, token, dsn string) (Adapter, error) {
	switch adapterType {
	case "rest":
		return NewRESTAdapter(name, baseURL, token), nil
	case "postgres":
		return NewPostgresAdapter(name, dsn)
	default:
		return nil, fmt.Errorf("unsupported platform type: %s", adapterType)
	}
}
