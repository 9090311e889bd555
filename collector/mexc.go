package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/metrics"
	"github.com/gtoxlili/pumpRadar/utils"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	mexcWSURL       = "wss://contract.mexc.com/edge"
	mexcContractURL = "https://contract.mexc.com/api/v1/contract/detail"
	mexcKlineTopic  = "push.kline"
	mexcUSDTSuffix  = "_USDT"
)

type mexcSource struct {
	wsURL       string
	contractURL string
	httpClient  *http.Client
	dialer      *websocket.Dialer

	pingInterval   time.Duration
	idleTimeout    time.Duration // 超过该时间没有任何消息则重连
	reconnectDelay time.Duration
}

func newMexcSource() *mexcSource {
	return &mexcSource{
		wsURL:          mexcWSURL,
		contractURL:    mexcContractURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		dialer:         websocket.DefaultDialer,
		pingInterval:   20 * time.Second,
		idleTimeout:    30 * time.Second,
		reconnectDelay: 5 * time.Second,
	}
}

func (m *mexcSource) Name() string { return "mexc" }

type mexcContract struct {
	Symbol      string `json:"symbol"`
	State       int    `json:"state"`
	OpeningTime int64  `json:"openingTime"`
}

type mexcContractResp struct {
	Success bool           `json:"success"`
	Code    int            `json:"code"`
	Data    []mexcContract `json:"data"`
}

// Symbols 返回已开盘的 USDT 结算合约
func (m *mexcSource) Symbols(ctx context.Context) ([]string, error) {
	resp, err := utils.RetryWithBackoff(ctx, m.fetchContracts, 3)
	if err != nil {
		return nil, err
	}
	return usableContracts(resp.Data, time.Now().UnixMilli()), nil
}

func (m *mexcSource) fetchContracts(ctx context.Context) (mexcContractResp, error) {
	var out mexcContractResp
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.contractURL, nil)
	if err != nil {
		return out, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("contract detail: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode contract detail: %w", err)
	}
	if !out.Success {
		return out, fmt.Errorf("contract detail: code %d", out.Code)
	}
	return out, nil
}

func usableContracts(contracts []mexcContract, nowMillis int64) []string {
	return lo.FilterMap(contracts, func(c mexcContract, _ int) (string, bool) {
		return c.Symbol, strings.HasSuffix(c.Symbol, mexcUSDTSuffix) && c.OpeningTime <= nowMillis
	})
}

// Run 维持一条订阅全部交易对 Min1/Min5 的连接，断开后等待 reconnectDelay 重连
func (m *mexcSource) Run(ctx context.Context, symbols []string, handler CandleHandler) error {
	for {
		err := m.session(ctx, symbols, handler)
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).Warnf("mexc websocket disconnected, reconnecting in %s", m.reconnectDelay)
		metrics.FeedReconnects.WithLabelValues(m.Name()).Inc()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.reconnectDelay):
		}
	}
}

func (m *mexcSource) session(ctx context.Context, symbols []string, handler CandleHandler) error {
	conn, _, err := m.dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.wsURL, err)
	}
	defer conn.Close()

	// 只有在订阅完成后才启动 ping，保证同一时刻只有一个写者
	for _, interval := range []string{entity.IntervalMin1, entity.IntervalMin5} {
		for _, symbol := range symbols {
			if err := m.send(conn, subscribeMsg(symbol, interval)); err != nil {
				return fmt.Errorf("subscribe %s %s: %w", symbol, interval, err)
			}
		}
	}
	log.WithField("symbols", len(symbols)).Info("mexc websocket subscribed")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		ticker := time.NewTicker(m.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := m.send(conn, map[string]string{"method": "ping"}); err != nil {
					return fmt.Errorf("ping: %w", err)
				}
			}
		}
	})
	g.Go(func() error {
		for {
			if err := conn.SetReadDeadline(time.Now().Add(m.idleTimeout)); err != nil {
				return err
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			symbol, interval, raw, ok, err := parseMexcFrame(data)
			if err != nil {
				log.WithError(err).Debug("skip malformed frame")
				continue
			}
			if !ok {
				continue
			}
			metrics.CandlesReceived.WithLabelValues(interval).Inc()
			handler(symbol, interval, raw)
		}
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *mexcSource) send(conn *websocket.Conn, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

type mexcSubscribe struct {
	Method string            `json:"method"`
	Param  map[string]string `json:"param"`
}

func subscribeMsg(symbol, interval string) mexcSubscribe {
	return mexcSubscribe{
		Method: "sub.kline",
		Param:  map[string]string{"symbol": symbol, "interval": interval},
	}
}

type mexcHeader struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

type mexcKlineFrame struct {
	Symbol string `json:"symbol"`
	Data   struct {
		entity.RawCandle
		Interval string `json:"interval"`
	} `json:"data"`
}

// parseMexcFrame 解析一帧推送，ok 为 false 表示 pong、订阅回执等非 K 线消息
func parseMexcFrame(data []byte) (symbol, interval string, raw entity.RawCandle, ok bool, err error) {
	var header mexcHeader
	if err = json.Unmarshal(data, &header); err != nil {
		return
	}
	if header.Channel != mexcKlineTopic || header.Symbol == "" {
		return
	}
	var frame mexcKlineFrame
	if err = json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.Data.Interval != entity.IntervalMin1 && frame.Data.Interval != entity.IntervalMin5 {
		return
	}
	return frame.Symbol, frame.Data.Interval, frame.Data.RawCandle, true, nil
}
