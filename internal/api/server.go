package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	xerrors "Dominix-Chain/internal/errors"
	"Dominix-Chain/internal/notify"
	"Dominix-Chain/internal/orchestrator"
	"Dominix-Chain/internal/session"
	"Dominix-Chain/internal/wallet"
)

// Server 负责暴露 REST 接口，供前端驱动预售会话。
type Server struct {
	addr      string
	state     *session.State
	connector *wallet.Connector
	orch      *orchestrator.Orchestrator
	feed      *notify.FeedSink
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, state *session.State, connector *wallet.Connector, orch *orchestrator.Orchestrator, feed *notify.FeedSink) *Server {
	return &Server{addr: addr, state: state, connector: connector, orch: orch, feed: feed}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/session", s.handleSession)
	mux.HandleFunc("/api/v1/session/connect", s.handleConnect)
	mux.HandleFunc("/api/v1/session/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/v1/presale/buy", s.handleBuy)
	mux.HandleFunc("/api/v1/presale/sell", s.handleSell)
	mux.HandleFunc("/api/v1/presale/quote", s.handleQuote)
	mux.HandleFunc("/api/v1/presale/register-email", s.handleRegisterEmail)
	mux.HandleFunc("/api/v1/notifications", s.handleNotifications)

	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleSession 返回当前会话状态的快照。
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.state.View())
}

// handleConnect 发起一次交互式钱包连接。
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.connector == nil {
		http.Error(w, "连接器未初始化", http.StatusServiceUnavailable)
		return
	}
	if err := s.connector.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, s.state.View())
}

// handleDisconnect 清空当前会话。
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.connector == nil {
		http.Error(w, "连接器未初始化", http.StatusServiceUnavailable)
		return
	}
	s.connector.Disconnect()
	writeJSON(w, s.state.View())
}

type buyRequest struct {
	Amount   string `json:"amount"`
	Referrer string `json:"referrer"`
	Email    string `json:"email"`
}

// handleBuy 发起一次购买。请求在交易确认后才返回。
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.orch.Buy(r.Context(), req.Amount, req.Referrer, req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, s.state.View())
}

type sellRequest struct {
	Amount string `json:"amount"`
}

// handleSell 发起一次回售。
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.orch.Sell(r.Context(), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, s.state.View())
}

type quoteResponse struct {
	Side   string `json:"side"`
	Amount string `json:"amount"`
	Quote  string `json:"quote"`
}

// handleQuote 按当前阶段价格返回买入产出或回售到账的估算值。
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	amount := r.URL.Query().Get("amount")
	side := r.URL.Query().Get("side")

	var quote string
	var err error
	switch side {
	case "sell":
		quote, err = s.orch.EstimateSellReturn(amount)
	case "", "buy":
		side = "buy"
		quote, err = s.orch.EstimateBuyOutput(amount)
	default:
		http.Error(w, "side 仅支持 buy/sell", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, quoteResponse{Side: side, Amount: amount, Quote: quote})
}

type registerRequest struct {
	Email string `json:"email"`
}

// handleRegisterEmail 为当前账户登记邮箱。
func (s *Server) handleRegisterEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.orch.RegisterEmail(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, s.state.View())
}

// handleNotifications 返回最近的通知，最新的在末尾。
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.feed == nil {
		writeJSON(w, []notify.Message{})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, s.feed.Recent(limit))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 把统一错误码映射为 HTTP 状态并输出 JSON 错误体。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case xerrors.CodeValidation:
		status = http.StatusBadRequest
	case xerrors.CodeUserRejected:
		status = http.StatusConflict
	case xerrors.CodeProviderUnavailable:
		status = http.StatusServiceUnavailable
	case xerrors.CodeContractRevert:
		status = http.StatusUnprocessableEntity
	}

	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: string(code), Message: message})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
