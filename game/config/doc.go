// Package config loads server settings for the room relay.
//
// Sources, lowest to highest precedence:
//   - Built-in defaults
//   - A YAML file (./tiltroom.yaml, or the file passed to Load)
//   - TILTROOM_* environment variables
//   - Overrides supplied by the caller, typically command line flags
//
// PORT is honored as a fallback for TILTROOM_PORT. NGROK_AUTHTOKEN,
// NGROK_AUTH_TOKEN, NGROK_DOMAIN and NGROK_ENABLED feed the ngrok section.
//
// Example file:
//
//	port: 3000
//	static_dir: ./public
//	max_players: 4
//	aggregate_scope: global
//	sweep_interval: 5m
//	nats_url: nats://127.0.0.1:4222
//	cors_origins: [http://localhost:5173]
//	ngrok:
//	  enabled: true
//	  domain: tilt.example.ngrok.app
package config
