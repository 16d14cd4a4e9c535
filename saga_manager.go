package tram

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SagaMetrics records saga lifecycle measurements.
type SagaMetrics interface {
	RecordSagaStarted(sagaType string)
	RecordSagaEnded(sagaType string, compensated bool)
	RecordReplyHandled(sagaType, replyType string, outcome ReplyOutcome, duration time.Duration, err error)
	RecordCommandSent(sagaType, commandType string)
}

// noopSagaMetrics is a no-op implementation of SagaMetrics.
type noopSagaMetrics struct{}

func (m *noopSagaMetrics) RecordSagaStarted(sagaType string)                 {}
func (m *noopSagaMetrics) RecordSagaEnded(sagaType string, compensated bool) {}
func (m *noopSagaMetrics) RecordReplyHandled(sagaType, replyType string, outcome ReplyOutcome, duration time.Duration, err error) {
}
func (m *noopSagaMetrics) RecordCommandSent(sagaType, commandType string) {}

type sagaManagerConfig struct {
	repo         SagaInstanceRepository
	producer     MessageProducer
	ids          IDGenerator
	serializer   Serializer
	logger       Logger
	metrics      SagaMetrics
	replyChannel string
	channels     ChannelMapping
}

// SagaManagerOption configures a SagaManager.
type SagaManagerOption func(*sagaManagerConfig)

// WithSagaRepository sets the saga instance repository.
func WithSagaRepository(repo SagaInstanceRepository) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.repo = repo
	}
}

// WithSagaProducer sets the producer commands are sent through.
func WithSagaProducer(producer MessageProducer) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.producer = producer
	}
}

// WithSagaIDGenerator makes the manager stamp command messages with IDs from ids
// before handing them to the producer. Use it with transport producers that do not
// assign message IDs themselves.
func WithSagaIDGenerator(ids IDGenerator) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.ids = ids
	}
}

// WithSagaSerializer sets the serializer for commands, replies and saga data.
func WithSagaSerializer(serializer Serializer) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.serializer = serializer
	}
}

// WithSagaLogger sets the logger.
func WithSagaLogger(logger Logger) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.logger = logger
	}
}

// WithSagaMetrics sets the metrics collector.
func WithSagaMetrics(metrics SagaMetrics) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.metrics = metrics
	}
}

// WithReplyChannel overrides the channel participants reply to.
func WithReplyChannel(channel string) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.replyChannel = channel
	}
}

// WithChannelMapping sets the logical to physical channel mapping.
func WithChannelMapping(mapping ChannelMapping) SagaManagerOption {
	return func(c *sagaManagerConfig) {
		c.channels = mapping
	}
}

// SagaManager runs instances of one saga definition. It creates instances,
// sends the commands their steps produce, and applies the replies that come back.
type SagaManager[D any] struct {
	definition   *SagaDefinition[D]
	repo         SagaInstanceRepository
	commands     *CommandProducer
	serializer   Serializer
	logger       Logger
	metrics      SagaMetrics
	replyChannel string
	now          func() time.Time
}

// NewSagaManager creates a SagaManager for definition.
// A repository and a producer are required.
func NewSagaManager[D any](definition *SagaDefinition[D], opts ...SagaManagerOption) (*SagaManager[D], error) {
	if definition == nil {
		return nil, ErrEmptySagaDefinition
	}

	cfg := &sagaManagerConfig{
		serializer: NewJSONSerializer(),
		logger:     &noopLogger{},
		metrics:    &noopSagaMetrics{},
		channels:   identityMapping{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.repo == nil {
		return nil, ErrNoRepository
	}
	if cfg.producer == nil {
		return nil, ErrNoProducer
	}
	if cfg.ids != nil {
		cfg.producer = WithMessageIDs(cfg.producer, cfg.ids)
	}
	if cfg.replyChannel == "" {
		cfg.replyChannel = definition.SagaType() + "-reply"
	}

	return &SagaManager[D]{
		definition:   definition,
		repo:         cfg.repo,
		commands:     NewCommandProducer(cfg.producer, cfg.serializer, cfg.channels),
		serializer:   cfg.serializer,
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		replyChannel: cfg.replyChannel,
		now:          time.Now,
	}, nil
}

// SagaType returns the type of saga this manager runs.
func (m *SagaManager[D]) SagaType() string {
	return m.definition.SagaType()
}

// ReplyChannel returns the channel participants reply to.
func (m *SagaManager[D]) ReplyChannel() string {
	return m.replyChannel
}

// Create starts a new saga instance for data. The instance is saved before the
// first step runs so that commands can carry its ID.
func (m *SagaManager[D]) Create(ctx context.Context, data *D) (*SagaInstance, error) {
	serialized, err := SerializeSagaData(m.serializer, data)
	if err != nil {
		return nil, err
	}

	now := m.now()
	instance := &SagaInstance{
		SagaType:       m.SagaType(),
		StateName:      InitialExecutionState().Encode(),
		SerializedData: serialized,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.repo.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("tram: failed to save saga %s: %w", m.SagaType(), err)
	}

	m.logger.Info("Saga created", "sagaType", instance.SagaType, "sagaID", instance.ID)
	m.metrics.RecordSagaStarted(instance.SagaType)

	actions, err := m.definition.Start(ctx, data)
	if err != nil {
		return nil, &SagaFailedError{SagaType: instance.SagaType, SagaID: instance.ID, Cause: err}
	}

	if err := m.processActions(ctx, instance, data, actions); err != nil {
		return instance, err
	}
	return instance, nil
}

// HandleMessage applies a reply message to the saga instance it correlates to.
// Replies addressed to other saga types are ignored.
func (m *SagaManager[D]) HandleMessage(ctx context.Context, msg *Message) error {
	sagaType, err := msg.RequiredHeader(HeaderReplySagaType)
	if err != nil {
		return err
	}
	if sagaType != m.SagaType() {
		m.logger.Debug("Ignoring reply for other saga type", "sagaType", sagaType, "messageID", msg.ID())
		return nil
	}
	sagaID, err := msg.RequiredHeader(HeaderReplySagaID)
	if err != nil {
		return err
	}

	start := m.now()
	reply := NewSagaReply(msg, m.serializer)
	err = m.handleReply(ctx, sagaID, reply)
	m.metrics.RecordReplyHandled(sagaType, reply.Type(), reply.Outcome(), m.now().Sub(start), err)
	if err != nil {
		m.logger.Error("Failed to handle reply",
			"sagaType", sagaType,
			"sagaID", sagaID,
			"replyType", reply.Type(),
			"error", err)
	}
	return err
}

func (m *SagaManager[D]) handleReply(ctx context.Context, sagaID string, reply *SagaReply) error {
	instance, err := m.repo.Find(ctx, m.SagaType(), sagaID)
	if err != nil {
		return fmt.Errorf("tram: failed to load saga %s/%s: %w", m.SagaType(), sagaID, err)
	}
	if instance.EndState {
		return fmt.Errorf("tram: saga %s/%s: %w", instance.SagaType, instance.ID, ErrSagaEnded)
	}

	inReplyTo := reply.Message.Header(HeaderInReplyTo)
	if instance.LastRequestID != "" && inReplyTo != instance.LastRequestID {
		return fmt.Errorf("tram: saga %s/%s expected reply to %s, got reply to %q: %w",
			instance.SagaType, instance.ID, instance.LastRequestID, inReplyTo, ErrUnexpectedReply)
	}

	data, err := DeserializeSagaData[D](m.serializer, instance.SerializedData)
	if err != nil {
		return err
	}
	state, err := DecodeExecutionState(instance.StateName)
	if err != nil {
		return err
	}

	m.logger.Debug("Handling reply",
		"sagaType", instance.SagaType,
		"sagaID", instance.ID,
		"replyType", reply.Type(),
		"outcome", reply.Outcome())

	actions, err := m.definition.HandleReply(ctx, state, data, reply)
	if err != nil {
		return &SagaFailedError{SagaType: instance.SagaType, SagaID: instance.ID, Step: state.CurrentlyExecuting, Cause: err}
	}
	return m.processActions(ctx, instance, data, actions)
}

// processActions sends the commands of actions and persists the instance.
func (m *SagaManager[D]) processActions(ctx context.Context, instance *SagaInstance, data *D, actions SagaActions) error {
	if actions.LocalError != nil {
		m.logger.Warn("Local step failed, compensating",
			"sagaType", instance.SagaType,
			"sagaID", instance.ID,
			"error", actions.LocalError)
	}

	for _, cmd := range actions.Commands {
		headers := make(map[string]string, len(cmd.ExtraHeaders)+2)
		for k, v := range cmd.ExtraHeaders {
			headers[k] = v
		}
		headers[HeaderSagaType] = instance.SagaType
		headers[HeaderSagaID] = instance.ID

		id, err := m.commands.Send(ctx, cmd.Channel, cmd.Resource, cmd.Command, m.replyChannel, headers)
		if err != nil {
			return &SagaFailedError{SagaType: instance.SagaType, SagaID: instance.ID, Step: actions.State.CurrentlyExecuting, Cause: err}
		}
		instance.LastRequestID = id
		m.metrics.RecordCommandSent(instance.SagaType, TypeName(cmd.Command))
		m.logger.Debug("Command sent",
			"sagaType", instance.SagaType,
			"sagaID", instance.ID,
			"command", TypeName(cmd.Command),
			"channel", cmd.Channel,
			"messageID", id)
	}

	serialized, err := SerializeSagaData(m.serializer, data)
	if err != nil {
		return err
	}
	instance.SerializedData = serialized
	instance.StateName = actions.State.Encode()
	instance.EndState = actions.State.EndState
	instance.Compensating = actions.State.Compensating
	instance.Failed = actions.State.Failed
	instance.UpdatedAt = m.now()

	if err := m.repo.Update(ctx, instance); err != nil {
		return fmt.Errorf("tram: failed to update saga %s/%s: %w", instance.SagaType, instance.ID, err)
	}

	if instance.EndState {
		m.metrics.RecordSagaEnded(instance.SagaType, instance.Compensating)
		m.logger.Info("Saga ended",
			"sagaType", instance.SagaType,
			"sagaID", instance.ID,
			"compensated", instance.Compensating,
			"failed", instance.Failed)
	}

	if actions.Err != nil {
		var failed *SagaFailedError
		if errors.As(actions.Err, &failed) && failed.SagaID == "" {
			failed.SagaID = instance.ID
		}
		return actions.Err
	}
	return nil
}

// Find loads a saga instance of this manager's type with its decoded data.
func (m *SagaManager[D]) Find(ctx context.Context, sagaID string) (*SagaInstanceWithData[D], error) {
	return FindWithData[D](ctx, m.repo, m.serializer, m.SagaType(), sagaID)
}
