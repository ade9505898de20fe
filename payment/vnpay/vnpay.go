// Package vnpay VNPay 2.1.0 支付网关：生成带签名的跳转链接，校验回调签名。
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shop-service/payment"
)

const (
	SandboxHost    = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	ProductionHost = "https://pay.vnpay.vn/vpcpay.html"

	version       = "2.1.0"
	dateLayout    = "20060102150405"
	codeSuccess   = "00"
	expireAfter   = 15 * time.Minute
	secureHashKey = "vnp_SecureHash"
	hashTypeKey   = "vnp_SecureHashType"
)

// 网关按越南时间校验时间戳
var gmt7 = time.FixedZone("GMT+7", 7*60*60)

type Config struct {
	MerchantCode string
	Secret       string
	GatewayHost  string
	ReturnURL    string
	TestMode     bool
}

type Gateway struct {
	cfg Config
}

func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.MerchantCode == "" || cfg.Secret == "" {
		return nil, errors.New("vnpay: merchant code and secret are required")
	}
	if cfg.GatewayHost == "" {
		cfg.GatewayHost = ProductionHost
		if cfg.TestMode {
			cfg.GatewayHost = SandboxHost
		}
	}
	return &Gateway{cfg: cfg}, nil
}

var _ payment.Gateway = (*Gateway)(nil)

func (g *Gateway) Method() string {
	return "vnpay"
}

func (g *Gateway) BuildRedirectURL(req payment.Request) (string, error) {
	if req.OrderID == "" || req.Amount <= 0 {
		return "", errors.New("vnpay: order id and positive amount are required")
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	info := req.OrderInfo
	if info == "" {
		info = "Thanh toan don hang " + req.OrderID
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", version)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.cfg.MerchantCode)
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", req.OrderID)
	params.Set("vnp_OrderInfo", info)
	params.Set("vnp_OrderType", "other")
	// 金额放大 100 倍
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", createdAt.In(gmt7).Format(dateLayout))
	params.Set("vnp_ExpireDate", createdAt.Add(expireAfter).In(gmt7).Format(dateLayout))

	query := canonicalQuery(params)
	return g.cfg.GatewayHost + "?" + query + "&" + secureHashKey + "=" + g.sign(query), nil
}

func (g *Gateway) VerifyCallback(params url.Values) (payment.Callback, error) {
	res := payment.Callback{
		OrderID:       params.Get("vnp_TxnRef"),
		ResponseCode:  params.Get("vnp_ResponseCode"),
		TransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:      params.Get("vnp_BankCode"),
	}
	if raw := params.Get("vnp_Amount"); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return res, errors.New("vnpay: malformed vnp_Amount")
		}
		res.Amount = amount / 100
	}

	got, err := hex.DecodeString(params.Get(secureHashKey))
	if err != nil || len(got) == 0 {
		return res, nil
	}
	signed := url.Values{}
	for k, v := range params {
		if k == secureHashKey || k == hashTypeKey || !strings.HasPrefix(k, "vnp_") {
			continue
		}
		signed[k] = v
	}
	want, _ := hex.DecodeString(g.sign(canonicalQuery(signed)))
	res.Verified = hmac.Equal(got, want)

	status := params.Get("vnp_TransactionStatus")
	res.Success = res.Verified && res.ResponseCode == codeSuccess && (status == "" || status == codeSuccess)
	return res, nil
}

func (g *Gateway) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(g.cfg.Secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery 按 key 排序，key 和 value 都做 URL 编码，空值跳过
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(k)))
	}
	return sb.String()
}
