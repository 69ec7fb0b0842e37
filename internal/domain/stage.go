package domain

// Stage — этап жизненного цикла request в конвейере.
//
// Жизненный цикл:
//
//	Created → CollectionListed → Transformed → ContentRegistered
//	        → Submitted → Polling → Completed → Notified
//
// Failed достижим из любого нетерминального этапа после исчерпания
// retry-бюджета. Notified и Failed — терминальные; Failed возвращается
// в работу только вручную (conveyor-admin request reset).
type Stage string

const (
	// StageCreated — request создан, ожидает collector.
	StageCreated Stage = "Created"

	// StageCollectionListed — коллекция найдена и перечислена collector'ом.
	StageCollectionListed Stage = "CollectionListed"

	// StageTransformed — transformer построил описание выходной коллекции.
	StageTransformed Stage = "Transformed"

	// StageContentRegistered — transporter зарегистрировал contents.
	StageContentRegistered Stage = "ContentRegistered"

	// StageSubmitted — carrier отправил запрос в backend, получен tracking handle.
	StageSubmitted Stage = "Submitted"

	// StagePolling — carrier опрашивает backend по tracking handle.
	StagePolling Stage = "Polling"

	// StageCompleted — backend отчитался об успехе, осталось уведомить.
	StageCompleted Stage = "Completed"

	// StageNotified — conductor доставил уведомление. Терминальный этап.
	StageNotified Stage = "Notified"

	// StageFailed — retry-бюджет исчерпан, причина записана. Терминальный этап.
	StageFailed Stage = "Failed"
)

// stageTransitions — допустимые переходы между этапами.
// Polling → Polling легален: poller обновляет updated_at, пока backend работает.
var stageTransitions = map[Stage][]Stage{
	StageCreated:           {StageCollectionListed},
	StageCollectionListed:  {StageTransformed},
	StageTransformed:       {StageContentRegistered},
	StageContentRegistered: {StageSubmitted},
	StageSubmitted:         {StagePolling, StageCompleted},
	StagePolling:           {StagePolling, StageCompleted},
	StageCompleted:         {StageNotified},
}

// IsTerminal возвращает true, если этап финальный.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageNotified, StageFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода s → next.
// Переход в Failed разрешён из любого нетерминального этапа.
func (s Stage) CanTransitionTo(next Stage) bool {
	if next == StageFailed {
		return !s.IsTerminal()
	}
	for _, t := range stageTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// String возвращает строковое представление Stage.
func (s Stage) String() string {
	return string(s)
}

// Stages возвращает все этапы в порядке конвейера.
func Stages() []Stage {
	return []Stage{
		StageCreated,
		StageCollectionListed,
		StageTransformed,
		StageContentRegistered,
		StageSubmitted,
		StagePolling,
		StageCompleted,
		StageNotified,
		StageFailed,
	}
}

// ParseStage парсит строку в Stage.
// Возвращает false, если этап неизвестен.
func ParseStage(s string) (Stage, bool) {
	for _, stage := range Stages() {
		if string(stage) == s {
			return stage, true
		}
	}
	return "", false
}
