package models

// Slot status
const (
	SlotStatusAvailable = "available"
	SlotStatusOccupied  = "occupied"
)

// Slot is one physical parking bay.
type Slot struct {
	ID         int    `json:"id" db:"id"`
	Status     string `json:"status" db:"status"`
	OccupantID string `json:"occupant_id,omitempty" db:"occupant_id"`
}

func (s Slot) Occupied() bool {
	return s.Status == SlotStatusOccupied
}
