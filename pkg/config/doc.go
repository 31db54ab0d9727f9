/*
Package config loads a server's YAML configuration: its storage roots,
server identity and role bindings, the collections it hosts, flow
tuning, and its gossip listen address.

Adapted from a one-off resource file loader into a server's full
startup configuration.
*/
package config
