package bus

import "github.com/Rasalp1/canvas-lm-sub000/internal/realtime"

// Bus is the cross-process message substrate behind the relay.
type Bus = realtime.Transport
