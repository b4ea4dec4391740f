package doc

import (
	"encoding/json"
	"maps"
)

// KeyClientID is the actor attribute naming the client that made a change.
const KeyClientID = "clientId"

// Actor identifies who made a mutation: the client instance plus any
// caller-supplied user attributes.
type Actor struct {
	ClientID string
	Attrs    map[string]any
}

// NewActor builds the provenance marker for a mutation made by clientID on
// behalf of user. Envelope keys and any caller-supplied clientId are dropped.
func NewActor(clientID string, user map[string]any) Actor {
	attrs := StripReserved(user)
	delete(attrs, KeyClientID)
	if len(attrs) == 0 {
		attrs = nil
	}
	return Actor{ClientID: clientID, Attrs: attrs}
}

// Map flattens the actor.
func (a *Actor) Map() map[string]any {
	m := make(map[string]any, len(a.Attrs)+1)
	maps.Copy(m, a.Attrs)
	m[KeyClientID] = a.ClientID
	return m
}

func (a *Actor) clone() *Actor {
	if a == nil {
		return nil
	}
	c := *a
	c.Attrs = maps.Clone(a.Attrs)
	return &c
}

// MarshalJSON writes the flattened actor.
func (a Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Map())
}

// UnmarshalJSON reads a flattened actor.
func (a *Actor) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := Actor{}
	if id, ok := m[KeyClientID].(string); ok {
		out.ClientID = id
	}
	delete(m, KeyClientID)
	if len(m) > 0 {
		out.Attrs = m
	}
	*a = out
	return nil
}
