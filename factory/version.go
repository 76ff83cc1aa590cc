package factory

const (
	major = 1
	minor = 0
	patch = 0

	// Version of the functional registry logic in the packed
	// major*1e6 + minor*1e3 + patch form.
	Version = major*1_000_000 + minor*1_000 + patch

	// BootstrapVersion marks the placeholder logic a registry starts with
	// before its first upgrade.
	BootstrapVersion = 0
)
