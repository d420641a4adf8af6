// Package config loads the JSON configuration of the OpenUTR daemon: the API
// listener, logging, router roles and policies, batch storage and queue
// drivers, alerting and the devnet genesis file.
package config
