// Package config loads, validates and saves the YAML settings file of the
// pg-embed command line tool and converts it into fetch and server settings.
package config
