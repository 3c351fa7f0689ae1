// Chat-relay forwards chat messages from a browser UI to an OpenAI-compatible
// completion API.
//
// Usage:
//
//	# Run the HTTP server on PORT (default 3001)
//	chat-relay serve
//
//	# Same pipeline behind API Gateway
//	chat-relay lambda
//
//	# Overlay a YAML file on the environment
//	chat-relay serve --config relay.yaml
package main

func main() {
	Execute()
}
