package version

// Version is the application version, bumped on release.
var Version = "0.4.1"
