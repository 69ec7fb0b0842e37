package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/mq"
)

// messagingNotifier — реализация "messaging.notifier" capability notifier.
//
// Публикует уведомления о терминальных статусах в очередь AMQP брокера.
//
// Атрибуты:
//   - brokers (обязательный): адрес брокера host:port
//   - destination (обязательный): имя очереди-назначения
//   - vhost: virtual host брокера. Default: /
//   - username, password: учётные данные
//   - broker_timeout: таймаут установки соединения в секундах. Default: 10
//
// Соединение устанавливается лениво, при первой доставке: фабрика
// проверяет только атрибуты, поэтому недоступный брокер не мешает
// старту процесса, а отказ подключения остаётся обычной ошибкой
// вызова, которую диспетчер обрабатывает через retry.
type messagingNotifier struct {
	cfg    mq.BrokerConfig
	dest   mq.Queue
	logger *slog.Logger

	mu        sync.Mutex
	conn      *mq.Connection
	publisher *mq.Publisher
	declared  bool
}

func newMessagingNotifier(fc *FactoryContext, binding *config.PluginBinding) (any, error) {
	brokers, err := fc.RequireAttr(binding, "brokers")
	if err != nil {
		return nil, err
	}

	destination, err := fc.RequireAttr(binding, "destination")
	if err != nil {
		return nil, err
	}

	dialTimeout, err := fc.AttrSeconds(binding, "broker_timeout", 0)
	if err != nil {
		return nil, err
	}

	vhost, _ := binding.Attr("vhost")
	username, _ := binding.Attr("username")
	password, _ := binding.Attr("password")

	return &messagingNotifier{
		cfg: mq.BrokerConfig{
			Brokers:     brokers,
			VHost:       vhost,
			Username:    username,
			Password:    password,
			DialTimeout: dialTimeout,
		},
		dest:   mq.Queue(destination),
		logger: fc.Logger(),
	}, nil
}

// ensureReady подключается к брокеру и объявляет очередь-назначение.
// Повторные вызовы переиспользуют соединение; разрывы чинит
// автоматический reconnect внутри mq.Connection.
func (n *messagingNotifier) ensureReady(ctx context.Context) (*mq.Publisher, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		conn, err := mq.NewConnection(n.cfg, n.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
		n.conn = conn
		n.publisher = mq.NewPublisher(conn, n.logger)
	}

	if !n.declared {
		if err := mq.EnsureDestination(ctx, n.conn, n.dest); err != nil {
			return nil, err
		}
		n.declared = true
	}

	return n.publisher, nil
}

// Notify реализует Notifier.
func (n *messagingNotifier) Notify(ctx context.Context, batch []Notification) error {
	if len(batch) == 0 {
		return nil
	}

	publisher, err := n.ensureReady(ctx)
	if err != nil {
		return err
	}

	for _, note := range batch {
		payload := mq.RequestStatusPayload{
			RequestID: note.RequestID,
			Scope:     note.Scope,
			Name:      note.Name,
			Requester: note.Requester,
			Stage:     string(note.Stage),
			Reason:    note.Reason,
		}

		if err := publisher.PublishRequestStatus(ctx, string(n.dest), payload); err != nil {
			return fmt.Errorf("notify request %s: %w", note.RequestID, err)
		}
	}

	return nil
}

// Close закрывает соединение с брокером.
func (n *messagingNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}

	err := n.conn.Close()
	n.conn = nil
	n.publisher = nil
	n.declared = false
	return err
}
