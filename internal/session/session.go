package session

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Status 表示钱包会话的连接状态。
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// PhaseSnapshot 描述当前预售阶段的只读快照，刷新时整体替换。
type PhaseSnapshot struct {
	Index int    `json:"index"`
	Price string `json:"price"`
	Sold  string `json:"sold"`
	Cap   string `json:"cap"`
	// Progress 是已售占容量的百分比，随快照整体计算，不在读取侧派生。
	Progress string `json:"progress"`
	Active   bool   `json:"active"`
}

// BalanceSnapshot 描述账户的三种余额。
type BalanceSnapshot struct {
	PresaleToken string `json:"presale_token"`
	Stablecoin   string `json:"stablecoin"`
	Native       string `json:"native"`
}

// RegistrationState 记录账户在链上登记的邮箱。
// 合约保证邮箱一经登记便不可覆盖，客户端只读不改。
type RegistrationState struct {
	Email string `json:"email"`
}

// OperationKind 标识一次在途操作的类型。
type OperationKind string

const (
	OpBuy      OperationKind = "buy"
	OpSell     OperationKind = "sell"
	OpRegister OperationKind = "register_email"
)

// PendingOperation 描述一次在途的交易类操作，同一时刻最多存在一个。
type PendingOperation struct {
	ID        string
	Kind      OperationKind
	StartedAt time.Time
}

// ChainState 是一次刷新读取到的全部链上状态，整体提交。
type ChainState struct {
	Phase           PhaseSnapshot
	Balances        BalanceSnapshot
	MaxBuy          string
	Headline        string
	RegisteredEmail string
}

// View 是会话状态的一份只读拷贝，供 API 层序列化输出。
type View struct {
	Status           Status            `json:"status"`
	Account          string            `json:"account,omitempty"`
	ChainID          string            `json:"chain_id,omitempty"`
	Phase            PhaseSnapshot     `json:"phase"`
	Balances         BalanceSnapshot   `json:"balances"`
	Registration     RegistrationState `json:"registration"`
	MaxBuy           string            `json:"max_buy"`
	Headline         string            `json:"headline"`
	Connecting       bool              `json:"connecting"`
	Transacting      bool              `json:"transacting"`
	RegisteringEmail bool              `json:"registering_email"`
}

// State 是唯一的会话状态记录。所有字段仅允许通过具名的
// 状态转移方法修改，读取方只能拿到值拷贝。
type State struct {
	mu           sync.Mutex
	status       Status
	account      common.Address
	chainID      *big.Int
	phase        PhaseSnapshot
	balances     BalanceSnapshot
	registration RegistrationState
	maxBuy       string
	headline     string
	pending      *PendingOperation
}

// NewState 返回处于初始（未连接）状态的会话。
func NewState() *State {
	s := &State{}
	s.resetLocked()
	return s
}

func (s *State) resetLocked() {
	s.status = StatusDisconnected
	s.account = common.Address{}
	s.chainID = nil
	s.phase = PhaseSnapshot{Price: "0", Sold: "0", Cap: "0", Progress: "0"}
	s.balances = BalanceSnapshot{PresaleToken: "0", Stablecoin: "0", Native: "0"}
	s.registration = RegistrationState{}
	s.maxBuy = "0"
	s.headline = ""
	s.pending = nil
}

// Reset 将所有会话字段恢复到初始值。
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// BeginConnecting 进入连接中状态。已在连接或已连接时返回 false。
func (s *State) BeginConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusDisconnected {
		return false
	}
	s.status = StatusConnecting
	return true
}

// AbortConnecting 在连接失败时回到未连接状态。
func (s *State) AbortConnecting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusConnecting {
		s.status = StatusDisconnected
	}
}

// SetConnected 提交连接成功后的账户与链信息。
func (s *State) SetConnected(account common.Address, chainID *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusConnected
	s.account = account
	s.chainID = nil
	if chainID != nil {
		s.chainID = new(big.Int).Set(chainID)
	}
}

// Connected 返回会话是否处于已连接状态。
func (s *State) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusConnected
}

// Account 返回当前账户。第二个返回值指示会话是否已连接。
func (s *State) Account() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, s.status == StatusConnected
}

// ChainID 返回当前链 ID 的拷贝，未连接时为 nil。
func (s *State) ChainID() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID == nil {
		return nil
	}
	return new(big.Int).Set(s.chainID)
}

// ApplyChainState 以整体替换的方式提交一次刷新结果，绝不做部分更新。
func (s *State) ApplyChainState(cs ChainState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = cs.Phase
	s.balances = cs.Balances
	s.maxBuy = cs.MaxBuy
	s.headline = cs.Headline
	s.registration = RegistrationState{Email: cs.RegisteredEmail}
}

// BeginOperation 尝试登记一个在途操作。已有在途操作时返回 false，
// 调用方必须把这种情况当作无操作处理。
func (s *State) BeginOperation(kind OperationKind) (PendingOperation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return PendingOperation{}, false
	}
	op := PendingOperation{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
	s.pending = &op
	return op, true
}

// EndOperation 清除在途操作标记。必须在操作退出路径上无条件调用。
func (s *State) EndOperation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && s.pending.ID == id {
		s.pending = nil
	}
}

// Pending 返回在途操作的拷贝（如有）。
func (s *State) Pending() (PendingOperation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingOperation{}, false
	}
	return *s.pending, true
}

// RegisteredEmail 返回当前账户已登记的邮箱，未登记时为空串。
func (s *State) RegisteredEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registration.Email
}

// SetRegisteredEmail 在本地记录登记成功的邮箱。
// 邮箱只允许从空到非空转移一次，与合约语义一致。
func (s *State) SetRegisteredEmail(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registration.Email != "" {
		return false
	}
	s.registration.Email = email
	return true
}

// CurrentPrice 返回当前阶段价格的十进制字符串。
func (s *State) CurrentPrice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.Price
}

// View 返回会话状态的值拷贝。
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Status:       s.status,
		Phase:        s.phase,
		Balances:     s.balances,
		Registration: s.registration,
		MaxBuy:       s.maxBuy,
		Headline:     s.headline,
		Connecting:   s.status == StatusConnecting,
	}
	if s.status == StatusConnected {
		v.Account = s.account.Hex()
	}
	if s.chainID != nil {
		v.ChainID = s.chainID.String()
	}
	if s.pending != nil {
		switch s.pending.Kind {
		case OpRegister:
			v.RegisteringEmail = true
		default:
			v.Transacting = true
		}
	}
	return v
}
