// Package all imports every built-in ingress so that each registers itself
// with the default registry.
package all

import (
	_ "github.com/drblury/botflow/ingress/channel"
	_ "github.com/drblury/botflow/ingress/file"
	_ "github.com/drblury/botflow/ingress/http"
	_ "github.com/drblury/botflow/ingress/jetstream"
	_ "github.com/drblury/botflow/ingress/kafka"
	_ "github.com/drblury/botflow/ingress/nats"
	_ "github.com/drblury/botflow/ingress/rabbitmq"
	_ "github.com/drblury/botflow/ingress/telegram"
)
