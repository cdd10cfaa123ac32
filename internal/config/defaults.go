package config

import "strings"

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 3402
	DefaultPaymentBaseURL  = "https://api.claw.credit"
	DefaultChain           = "BASE"
	DefaultAsset           = "USDC"
	DefaultAmountUSD       = 0.1
	DefaultCaptureFile     = "/tmp/clawcredit-blockrun-gateway/.run/capture.jsonl"
	DefaultCaptureRedisKey = "clawcredit-gateway:capture"
	defaultUpstreamBaseURL = "https://blockrun.ai/api"
	xrplUpstreamBaseURL    = "https://xrpl.blockrun.ai/api"
)

var chainAssetDefaults = map[string]string{
	"BASE": "USDC",
	"XRPL": "RLUSD",
}

var chainUpstreamDefaults = map[string]string{
	"BASE": defaultUpstreamBaseURL,
	"XRPL": xrplUpstreamBaseURL,
}

// Default returns the configuration used before any file or environment overrides.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Payment: PaymentConfig{
			BaseURL:          DefaultPaymentBaseURL,
			Chain:            DefaultChain,
			DefaultAmountUSD: DefaultAmountUSD,
		},
		Capture: CaptureConfig{
			File:     DefaultCaptureFile,
			RedisKey: DefaultCaptureRedisKey,
		},
	}
}

// ChainAsset is a resolved chain/asset pair.
type ChainAsset struct {
	Chain string
	Asset string
}

// ResolveChainAsset upper-cases the chain and picks the chain's default asset
// unless one is given explicitly.
func ResolveChainAsset(chain, asset string) ChainAsset {
	chain = strings.ToUpper(strings.TrimSpace(chain))
	if chain == "" {
		chain = DefaultChain
	}

	if explicit := strings.TrimSpace(asset); explicit != "" {
		return ChainAsset{Chain: chain, Asset: explicit}
	}

	if def, ok := chainAssetDefaults[chain]; ok {
		return ChainAsset{Chain: chain, Asset: def}
	}
	return ChainAsset{Chain: chain, Asset: DefaultAsset}
}

// ResolveUpstreamBase returns the explicit upstream base URL, or the chain's
// regional endpoint when none is given.
func ResolveUpstreamBase(chain, explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if def, ok := chainUpstreamDefaults[strings.ToUpper(strings.TrimSpace(chain))]; ok {
		return def
	}
	return defaultUpstreamBaseURL
}
