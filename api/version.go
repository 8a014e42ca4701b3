package api

// Version is the CLI release version, reported in the User-Agent header.
const Version = "0.1.0"

// UserAgent identifies this client to the API.
const UserAgent = "sublime-cli/" + Version
