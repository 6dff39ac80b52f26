package internal

// Version is stamped at build time:
//
//	go build -ldflags "-X relaychat/internal.Version=1.3.0" ./cmd/relaychat
var Version = "dev"
