package domain

import "time"

// Termination es el motivo por el que terminó una sesión de puja.
type Termination string

const (
	TerminationNone      Termination = ""
	TerminationSucceeded Termination = "succeeded" // puja aceptada
	TerminationExhausted Termination = "exhausted" // duración máxima sin pujar
	TerminationCancelled Termination = "cancelled" // parada del operador
	TerminationFault     Termination = "fault"     // tope de fallos de la fuente
)

// SessionRecord es la vista archivada de una sesión de puja.
type SessionRecord struct {
	ID          string
	ProductID   string
	Size        string
	TargetPrice int64
	MaxPrice    int64
	StartedAt   time.Time
	EndedAt     *time.Time
	Termination Termination
	Snapshots   int
	Attempts    int
}

// Finished indica si la sesión llegó a un estado terminal.
func (r SessionRecord) Finished() bool {
	return r.Termination != TerminationNone
}
