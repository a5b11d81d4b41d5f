// Copyright 2022 bnb-chain. All Rights Reserved.
//
// Distributed under MIT license.
// See file LICENSE for detail or copy at https://opensource.org/licenses/MIT

package redis

import "github.com/go-redis/redis/v8"

// An Option configures an *Environment.
type Option interface {
	Apply(*Environment)
}

// OptionFunc is a function that configures an *Environment.
type OptionFunc func(*Environment)

func (f OptionFunc) Apply(env *Environment) {
	f(env)
}

// WithHooks installs go-redis hooks, e.g. for latency or error metrics.
func WithHooks(hooks ...redis.Hook) Option {
	return OptionFunc(func(env *Environment) {
		if env.client == nil {
			return
		}
		for _, hook := range hooks {
			env.client.AddHook(hook)
		}
	})
}
