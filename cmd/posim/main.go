// Command posim plays one scripted POS lane session against a running
// gateway: online status probe, customer begin, rewards request, then
// finalize or cancel, and customer end. Responses are decoded through the
// same frame codec the terminals use.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rtnapps/loyalty-gateway/internal/observability"
	"github.com/rtnapps/loyalty-gateway/internal/protocol/frame"
	"github.com/rtnapps/loyalty-gateway/internal/protocol/posxml"
)

const responseTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to scenario toml (defaults when empty)")
	flag.Parse()

	logger := observability.InitLogger("posim", "debug", "")

	cfg := defaultSimConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadSimConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load scenario")
		}
		logger.Info().Str("path", *configPath).Msg("loaded scenario")
	}
	if cfg.TransactionID == "" {
		cfg.TransactionID = uuid.NewString()
	}

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Addr).Msg("failed to dial gateway")
	}
	defer conn.Close()
	logger.Info().Str("addr", cfg.Addr).Msg("connected")

	seq := 1

	resp := exchange(conn, onlineStatusRequest(cfg, seq))
	logger.Info().Str("payload", oneLine(resp)).Msg("online status")
	seq++

	// Begin/End carry no response on this protocol.
	send(conn, beginCustomerRequest(cfg, seq))
	logger.Info().Msg("begin customer sent")
	seq++

	resp = exchange(conn, getRewardsRequest(cfg, seq))
	logger.Info().Str("payload", oneLine(resp)).Msg("rewards response")
	seq++

	loyaltySeq, rewardID := rewardsResult(resp)
	if rewardID != "" {
		logger.Info().Str("reward_id", rewardID).Str("loyalty_seq", loyaltySeq).Msg("reward granted")
	} else {
		logger.Info().Str("loyalty_seq", loyaltySeq).Msg("no reward granted")
	}

	switch {
	case cfg.Cancel:
		resp = exchange(conn, cancelRequest(cfg, seq, loyaltySeq))
		logger.Info().Str("payload", oneLine(resp)).Msg("cancel response")
		seq++
	case cfg.Finalize:
		resp = exchange(conn, finalizeRequest(cfg, seq, loyaltySeq, rewardID))
		logger.Info().Str("payload", oneLine(resp)).Msg("finalize response")
		seq++
	}

	send(conn, endCustomerRequest(cfg, seq))
	logger.Info().Msg("end customer sent")

	logger.Info().Msg("session complete")
}

// send writes one raw (unframed) request, the way real terminals do.
func send(conn net.Conn, payload string) {
	if _, err := conn.Write([]byte(payload)); err != nil {
		log.Fatal().Err(err).Msg("request write failed")
	}
}

// exchange sends one request and decodes the framed response behind it.
func exchange(conn net.Conn, payload string) string {
	send(conn, payload)

	_ = conn.SetReadDeadline(time.Now().Add(responseTimeout))
	header := make([]byte, frame.HeaderLen)
	if _, err := io.ReadFull(conn, header); err != nil {
		log.Fatal().Err(err).Msg("response header read failed")
	}
	payloadLen := binary.LittleEndian.Uint32(header[16:20])
	body := make([]byte, payloadLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		log.Fatal().Err(err).Msg("response payload read failed")
	}

	f, err := frame.Decode(append(header, body...))
	if err != nil {
		log.Fatal().Err(err).Msg("response frame rejected")
	}
	return string(f.Payload)
}

// rewardsResult pulls the session sequence id and granted reward id out of a
// rewards response payload.
func rewardsResult(payload string) (loyaltySeq, rewardID string) {
	root, err := posxml.Parse(payload)
	if err != nil {
		return "", ""
	}
	loyaltySeq, _ = root.FirstText("LoyaltySequenceID")
	rewardID, _ = root.FirstText("LoyaltyRewardID")
	return loyaltySeq, rewardID
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func onlineStatusRequest(cfg simConfig, seq int) string {
	return fmt.Sprintf(`<GetLoyaltyOnlineStatusRequest>
  <RequestHeader>
    <POSSequenceID>%d</POSSequenceID>
    <StoreLocationID>%s</StoreLocationID>
  </RequestHeader>
</GetLoyaltyOnlineStatusRequest>`, seq, cfg.StoreID)
}

func beginCustomerRequest(cfg simConfig, seq int) string {
	return fmt.Sprintf(`<BeginCustomerRequest>
  <RequestHeader>
    <POSSequenceID>%d</POSSequenceID>
    <StoreLocationID>%s</StoreLocationID>
  </RequestHeader>
  <CashierID>%s</CashierID>
</BeginCustomerRequest>`, seq, cfg.StoreID, cfg.CashierID)
}

func getRewardsRequest(cfg simConfig, seq int) string {
	return fmt.Sprintf(`<GetRewardsRequest>
  <RequestHeader>
    <POSSequenceID>%d</POSSequenceID>
    <StoreLocationID>%s</StoreLocationID>
  </RequestHeader>
  <LoyaltyID>%s</LoyaltyID>
  <POSTransactionID>%s</POSTransactionID>
  <CashierID>%s</CashierID>
  <TransactionDetailGroup>
    <TransactionLine>
      <LineNumber>1</LineNumber>
      <ItemLine>
        <ItemCode><POSCode>%s</POSCode></ItemCode>
        <Description>%s</Description>
      </ItemLine>
    </TransactionLine>
  </TransactionDetailGroup>
</GetRewardsRequest>`, seq, cfg.StoreID, cfg.LoyaltyID, cfg.TransactionID, cfg.CashierID, cfg.ItemUPC, cfg.ItemDesc)
}

func finalizeRequest(cfg simConfig, seq int, loyaltySeq, rewardID string) string {
	var reward string
	if rewardID != "" {
		reward = fmt.Sprintf("\n  <LoyaltyRewardID>%s</LoyaltyRewardID>", rewardID)
	}
	return fmt.Sprintf(`<FinalizeRewardsRequest>
  <RequestHeader>
    <POSSequenceID>%d</POSSequenceID>
    <LoyaltySequenceID>%s</LoyaltySequenceID>
    <StoreLocationID>%s</StoreLocationID>
  </RequestHeader>
  <POSTransactionID>%s</POSTransactionID>%s
  <TenderInfo><TenderAmount>5.99</TenderAmount></TenderInfo>
</FinalizeRewardsRequest>`, seq, loyaltySeq, cfg.StoreID, cfg.TransactionID, reward)
}

func cancelRequest(cfg simConfig, seq int, loyaltySeq string) string {
	return fmt.Sprintf(`<CancelTransactionRequest>
  <RequestHeader>
    <POSSequenceID>%d</POSSequenceID>
    <LoyaltySequenceID>%s</LoyaltySequenceID>
    <StoreLocationID>%s</StoreLocationID>
  </RequestHeader>
  <POSTransactionID>%s</POSTransactionID>
</CancelTransactionRequest>`, seq, loyaltySeq, cfg.StoreID, cfg.TransactionID)
}

func endCustomerRequest(cfg simConfig, seq int) string {
	return fmt.Sprintf(`<EndCustomerRequest>
  <RequestHeader>
    <POSSequenceID>%d</POSSequenceID>
    <StoreLocationID>%s</StoreLocationID>
  </RequestHeader>
</EndCustomerRequest>`, seq, cfg.StoreID)
}
