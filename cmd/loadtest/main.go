package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

// 超发压测：maxUses 个名额，远多于名额数的并发下单，
// 成功数不得超过 maxUses，超出的请求必须拿到 409。
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	maxUses := flag.Int("max-uses", 5, "coupon slot capacity")
	nOrders := flag.Int("orders", 200, "concurrent order attempts")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	couponID, couponCode, sku, err := seed(client, *baseURL, *maxUses, *nOrders)
	if err != nil {
		panic(fmt.Sprintf("seed failed: %v", err))
	}
	fmt.Printf("seed ok: coupon=%s sku=%s slots=%d\n", couponCode, sku, *maxUses)

	fmt.Printf("start oversell test: orders=%d concurrency=%d\n", *nOrders, *concurrency)
	results := runOrders(client, *baseURL, couponCode, sku, *nOrders, *concurrency)
	printSummary("oversell", results)

	remaining, err := getRemaining(client, *baseURL, couponID)
	if err != nil {
		fmt.Println("slot check err:", err)
	} else {
		fmt.Println("final remaining slots:", remaining)
	}

	success := 0
	for _, r := range results {
		if r.Err == nil && r.Status == 200 {
			success++
		}
	}
	if success > *maxUses {
		fmt.Printf("OVERSELL DETECTED: %d successes > %d slots\n", success, *maxUses)
	} else {
		fmt.Printf("ok: %d successes <= %d slots\n", success, *maxUses)
	}
}

// seed 建好分类 / 商品 / 买家 / 限量券，返回券 ID、券码与商品 SKU。
// 每个并发请求用独立买家，避免限流把压测本身拦掉。
func seed(client *http.Client, baseURL string, maxUses, nCustomers int) (int, string, string, error) {
	var cat struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	if err := doPOST(client, baseURL+"/api/categories", map[string]any{
		"name": "loadtest", "slug": fmt.Sprintf("loadtest-%d", time.Now().UnixNano()),
	}, &cat); err != nil {
		return 0, "", "", err
	}

	sku := fmt.Sprintf("LT-%d", time.Now().UnixNano())
	if err := doPOST(client, baseURL+"/api/products", map[string]any{
		"category_id": cat.Data.ID, "name": "loadtest widget", "sku": sku,
		"price": 1000, "weight": 500,
	}, nil); err != nil {
		return 0, "", "", err
	}

	for i := 0; i < nCustomers; i++ {
		if err := doPOST(client, baseURL+"/api/customers", map[string]any{
			"name":  fmt.Sprintf("lt-%d", i),
			"email": fmt.Sprintf("lt-%d-%d@example.com", time.Now().UnixNano(), i),
			"street": "Load St", "city": "Testville", "state": "TS", "postal_code": "00000",
		}, nil); err != nil {
			return 0, "", "", err
		}
	}

	code := fmt.Sprintf("LOAD%d", time.Now().UnixNano())
	var coup struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	if err := doPOST(client, baseURL+"/api/coupons", map[string]any{
		"code": code, "percentage": 10, "type": "LIMITED", "max_uses": maxUses,
		"expires_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, &coup); err != nil {
		return 0, "", "", err
	}
	return int(coup.Data.ID), code, sku, nil
}

func runOrders(client *http.Client, baseURL, couponCode, sku string, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			body := map[string]any{
				// 买家按 seed 顺序自增：第一个买家 id 为 1
				"customer_id":    idx + 1,
				"items":          []map[string]any{{"sku": sku, "quantity": 1}},
				"payment_method": "credit_card",
				"coupon_code":    couponCode,
			}
			results[idx] = orderOnce(client, baseURL, body)
		}(i)
	}

	wg.Wait()
	return results
}

func orderOnce(client *http.Client, baseURL string, req any) Result {
	b, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 409, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doPOST 发送 POST 请求并可选解析响应。
func doPOST(client *http.Client, url string, body any, out any) error {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// getRemaining 查询券剩余名额，用于压测后校验是否超发。
func getRemaining(client *http.Client, baseURL string, couponID int) (int64, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/coupons/%d/slots", baseURL, couponID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Remaining int64 `json:"remaining"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Remaining, nil
}
