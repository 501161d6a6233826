package version

// Version is set at build time with
// -ldflags "-X EnigmaNetz/Enigma-Wifi-Sensor/internal/version.Version=..."
var Version = "dev"
