package logging

import "go.uber.org/zap"

// New returns a zap logger tuned by environment: JSON at info in prod,
// console at debug everywhere else.
func New(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
