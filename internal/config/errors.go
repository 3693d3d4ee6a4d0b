package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrEmptySystemKey error if config auth.SystemKey is empty.
	ErrEmptySystemKey = errors.New("toml config auth.systemkey can not be empty")

	// ErrEmptyCacheNamespace error if config cache.Namespace is empty.
	ErrEmptyCacheNamespace = errors.New("toml config cache.namespace can not be empty")
)
