package jingle

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/jingle/file"
)

// Options configures a FileSession.
type Options struct {
	// LogLevel sets the logrus level for the whole process.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// UseSecurity requests an end-to-end security element on every
	// outbound content, built from the certificate at CertificatePath.
	UseSecurity     bool   `envconfig:"USE_SECURITY" default:"false"`
	CertificatePath string `envconfig:"CERTIFICATE_PATH"`

	// RangedTransfers advertises support for resuming transfers at an
	// offset. Peers without it always restart from byte zero.
	RangedTransfers bool `envconfig:"RANGED_TRANSFERS" default:"true"`

	// HashAlgorithm names the digest attached to outbound offers.
	HashAlgorithm string `envconfig:"HASH_ALGORITHM" default:"sha-256"`
}

// NewOptions creates Options with the default configuration.
func NewOptions() *Options {
	return &Options{
		LogLevel:        "info",
		UseSecurity:     false,
		RangedTransfers: true,
		HashAlgorithm:   string(file.SHA256),
	}
}

// OptionsFromEnv loads Options from JINGLE_* environment variables,
// falling back to the defaults.
func OptionsFromEnv() (*Options, error) {
	opts := &Options{}
	if err := envconfig.Process("jingle", opts); err != nil {
		return nil, fmt.Errorf("loading options from environment: %w", err)
	}
	return opts, nil
}

// validate checks the configuration for contradictions before any state
// is built on it.
func (o *Options) validate() error {
	if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.LogLevel, err)
	}
	if !file.Algorithm(o.HashAlgorithm).Valid() {
		return fmt.Errorf("%w: %q", file.ErrUnknownAlgorithm, o.HashAlgorithm)
	}
	if o.UseSecurity && o.CertificatePath == "" {
		return fmt.Errorf("security enabled but no certificate path configured")
	}
	return nil
}
