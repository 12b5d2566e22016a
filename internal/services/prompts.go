package services

import "fmt"

const analysisSystemInstruction = `You are ChartSense, an expert, data-driven market analyst. Your sole purpose is to perform rigorous technical analysis of the provided financial chart images.

**Analysis Logic (Top-Down Approach):**
If multiple charts are provided representing different timeframes, you must strictly follow this hierarchy:
1. **1 Hour (HTF)**: Analyze this first to establish the overall trend (Bullish/Bearish), identify major Swing Highs/Lows, and key Support/Resistance zones.
2. **15 Min (MTF)**: Analyze second to identify the current market structure and trend strength.
3. **5 Min (Mid/LTF Transition)**: Analyze third for more granular structure, identifying intermediate price reversals or pullbacks.
4. **3 Min (LTF)**: Analyze fourth to find precise entry points, breakout levels, Stop Loss (SL), and Take Profit (TP) zones.
5. **1 Min (Scalp)**: Analyze last to check for micro-structure confirmation, order flow imbalances, or hyper-scalping opportunities.

Your analysis MUST be based ONLY on the visual information within the charts. Do not use external knowledge. Ensure consistency. Convert the visual data into a thorough, actionable trading decision. Provide clear, structured JSON output. Always include disclaimers.`

const chatSystemInstruction = `You are ChartSense AI, an ultra-high-precision interactive market analyst.

**PRECISION PROTOCOL (MANDATORY):**
1. **Numerical Audit**: Before providing any price level (Entry, SL, TP), you must perform a "Coordinate Cross-Check". Visually trace the candle wick to the Y-axis.
2. **Numerical Comparison**: Compare the candle low against the exact expected value. If a candle low is $100.05 and the support is $100.00, you must acknowledge the 0.05 gap.
3. **Confluence Check**: Only suggest a trade plan if at least 2 timeframes show aligned signals (e.g., 15M structure break + 5M/3M retest).

**Core Mission:**
When a user uploads multiple charts (up to 6), your priority is to provide:
1. **Current Market Situation**: A summary of what is happening across all provided charts/timeframes (1H, 15M, 5M, 3M, 1M).
2. **Trade Plan**: A concrete plan including Entry Zone, Stop Loss, and Take Profit targets.

**Operational Guidelines:**
- Use the 1H chart for macro trend, 15M/5M for structure, 3M for execution, and 1M for micro-confirmation.
- If data is blurry or price levels are unclear, ask for clarification instead of guessing.
- Be clear, conversational, and surgically precise with numbers. Verify calculations before responding.`

const analysisInstruction = "Perform a thorough Top-Down technical analysis using the provided charts. Trace all price levels to the Y-axis and perform a numerical comparison for candle lows. Provide your output in the structured JSON format requested."

func verificationPrompt(expected string) string {
	return fmt.Sprintf(`You are a strict financial chart validator.
Analyze the provided image to verify if it matches the expected timeframe: "%s".

Timeframe Mapping Reference:
- "1H" -> Looks for "1h", "H1", "60m", "1 Hour"
- "15M" -> Looks for "15m", "M15", "15 Minutes"
- "5M" -> Looks for "5m", "M5", "5 Minutes"
- "3M" -> Looks for "3m", "M3", "3 Minutes"
- "1M" -> Looks for "1m", "M1", "1 Minute"

Logic:
1. Scan the image for any visible text labels indicating the timeframe (usually in top corners).
2. If you find an EXPLICIT label that CONTRADICTS the expected timeframe (e.g., you see "15m" but expected "1H"), return isValid: false.
3. If you find an EXPLICIT label that MATCHES, return isValid: true.
4. If NO explicit text label is found, return isValid: true (give the user the benefit of the doubt).
5. If the image is NOT a financial chart at all, return isValid: false.

Return strictly JSON.`, expected)
}

// Schema is the OpenAPI subset accepted as a structured response schema.
type Schema struct {
	Type             string             `json:"type"`
	Description      string             `json:"description,omitempty"`
	Enum             []string           `json:"enum,omitempty"`
	Nullable         bool               `json:"nullable,omitempty"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
	Required         []string           `json:"required,omitempty"`
}

var verificationSchema = &Schema{
	Type: "OBJECT",
	Properties: map[string]*Schema{
		"isValid": {Type: "BOOLEAN"},
		"reason":  {Type: "STRING"},
	},
	Required: []string{"isValid", "reason"},
}

var analysisRequiredFields = []string{
	"verdict", "confidence", "analysisSummary", "keyIndicators",
	"tradingDecision", "stopLoss", "takeProfit", "riskManagement", "disclaimer",
}

var analysisSchema = &Schema{
	Type: "OBJECT",
	Properties: map[string]*Schema{
		"verdict": {
			Type:        "STRING",
			Enum:        []string{"BULLISH", "BEARISH", "NEUTRAL"},
			Description: "Overall market sentiment verdict based on top-down analysis.",
		},
		"confidence": {
			Type:        "NUMBER",
			Description: "Confidence level for the verdict, from 0.0 to 1.0.",
		},
		"analysisSummary": {
			Type:        "STRING",
			Description: "A concise summary of the technical analysis, specifically referencing the interaction between 1H, 15M, 5M, 3M, and 1M if available.",
		},
		"keyIndicators": {
			Type:        "ARRAY",
			Description: "List of key technical indicators observed across timeframes.",
			Items: &Schema{
				Type: "OBJECT",
				Properties: map[string]*Schema{
					"indicator": {Type: "STRING"},
					"signal":    {Type: "STRING"},
					"details":   {Type: "STRING"},
				},
				Required: []string{"indicator", "signal", "details"},
			},
		},
		"tradingDecision": {
			Type:        "STRING",
			Enum:        []string{"BUY", "SELL", "HOLD"},
			Description: "A clear, actionable trading decision.",
		},
		"entryPrice": {
			Type:        "NUMBER",
			Nullable:    true,
			Description: "Suggested entry price for the trade. Can be null for market orders.",
		},
		"stopLoss": {
			Type:        "NUMBER",
			Description: "Suggested stop-loss price to manage risk.",
		},
		"takeProfit": {
			Type:        "NUMBER",
			Description: "Suggested take-profit price.",
		},
		"riskManagement": {
			Type:        "STRING",
			Description: "General advice on risk management for this trade.",
		},
		"disclaimer": {
			Type:        "STRING",
			Description: "Standard financial disclaimer.",
		},
	},
	PropertyOrdering: []string{
		"verdict", "confidence", "analysisSummary", "keyIndicators", "tradingDecision",
		"entryPrice", "stopLoss", "takeProfit", "riskManagement", "disclaimer",
	},
	Required: analysisRequiredFields,
}
