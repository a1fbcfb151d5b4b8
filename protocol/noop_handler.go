package protocol

// NoOpHandler implements MessageHandler with no-op methods.
// Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleFtsState(string, *FtsState)           {}
func (NoOpHandler) HandleFtsConnection(string, *Connection)    {}
func (NoOpHandler) HandleModuleState(string, *ModuleState)     {}
func (NoOpHandler) HandleModuleConnection(string, *Connection) {}
func (NoOpHandler) HandleOrderRequest(*OrderRequest)           {}
func (NoOpHandler) HandleOrderCancel(*OrderCancel)             {}
func (NoOpHandler) HandleReset(*ResetRequest)                  {}
func (NoOpHandler) HandleCharge(*ChargeRequest)                {}
func (NoOpHandler) HandleLayout(*Layout)                       {}
func (NoOpHandler) HandlePairFts(*PairFts)                     {}

// Compile-time check that NoOpHandler implements MessageHandler.
var _ MessageHandler = NoOpHandler{}
