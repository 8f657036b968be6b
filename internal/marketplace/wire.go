package marketplace

// Remote operation names
const (
	opQuerySysStatus      = "doQuerySysStatus"
	opLoginEnc            = "doLoginEnc"
	opGetSiteJournalDeals = "doGetSiteJournalDeals"
	opGetPostBuyData      = "doGetPostBuyData"
	opGetPostBuyForms     = "doGetPostBuyFormsDataForSellers"
	opSendRefundForm      = "doSendRefundForm"
	opCancelRefundForm    = "doCancelRefundForm"
	opGetRefundsReasons   = "doGetRefundsReasons"
	opGetWaitingFeedbacks = "doGetWaitingFeedbacks"
	opFeedback            = "doFeedback"
	opGetMyBillingItem    = "doGetMyBillingItem"
	opGetItemsInfo        = "doGetItemsInfo"
	opGetMySellItems      = "doGetMySellItems"
)

const (
	sysVarAPIVersion    = 3
	feedbackOpToBuyer   = 2
	commentTypePositive = "POS"
)

type sysStatusRequest struct {
	SysVar    int    `json:"sysvar"`
	CountryID int    `json:"countryId"`
	WebapiKey string `json:"webapiKey"`
}

type sysStatusResponse struct {
	VerKey int64  `json:"verKey"`
	Info   string `json:"info"`
}

type loginRequest struct {
	UserLogin        string `json:"userLogin"`
	UserHashPassword string `json:"userHashPassword"`
	CountryCode      int    `json:"countryCode"`
	WebapiKey        string `json:"webapiKey"`
	LocalVersion     int64  `json:"localVersion"`
}

type loginResponse struct {
	SessionHandlePart string `json:"sessionHandlePart"`
	UserID            int64  `json:"userId"`
	ServerTime        int64  `json:"serverTime"`
}

type journalRequest struct {
	SessionID    string `json:"sessionId"`
	JournalStart int64  `json:"journalStart"`
}

type journalResponse struct {
	SiteJournalDeals []wireDeal `json:"siteJournalDeals"`
}

type wireDeal struct {
	DealEventID       int64 `json:"dealEventId"`
	DealEventType     int   `json:"dealEventType"`
	DealEventTime     int64 `json:"dealEventTime"`
	DealID            int64 `json:"dealId"`
	DealTransactionID int64 `json:"dealTransactionId"`
	DealSellerID      int64 `json:"dealSellerId"`
	DealItemID        int64 `json:"dealItemId"`
	DealBuyerID       int64 `json:"dealBuyerId"`
	DealQuantity      int   `json:"dealQuantity"`
}

type postBuyDataRequest struct {
	SessionHandle    string  `json:"sessionHandle"`
	ItemsArray       []int64 `json:"itemsArray"`
	BuyerFilterArray []int64 `json:"buyerFilterArray,omitempty"`
}

type postBuyDataResponse struct {
	ItemsPostBuyData []struct {
		ItemID           int64 `json:"itemId"`
		UsersPostBuyData []struct {
			UserData wireUser `json:"userData"`
		} `json:"usersPostBuyData"`
	} `json:"itemsPostBuyData"`
}

type wireUser struct {
	UserID        int64  `json:"userId"`
	UserLogin     string `json:"userLogin"`
	UserFirstName string `json:"userFirstName"`
	UserLastName  string `json:"userLastName"`
	UserCompany   string `json:"userCompany"`
	UserPostcode  string `json:"userPostcode"`
	UserCity      string `json:"userCity"`
	UserAddress   string `json:"userAddress"`
	UserEmail     string `json:"userEmail"`
	UserPhone     string `json:"userPhone"`
}

type postBuyFormsRequest struct {
	SessionID            string  `json:"sessionId"`
	TransactionsIDsArray []int64 `json:"transactionsIdsArray"`
}

type postBuyFormsResponse struct {
	PostBuyFormData []struct {
		PostBuyFormID              int64       `json:"postBuyFormId"`
		PostBuyFormAmount          float64     `json:"postBuyFormAmount"`
		PostBuyFormMsgToSeller     string      `json:"postBuyFormMsgToSeller"`
		PostBuyFormShipmentAddress wireAddress `json:"postBuyFormShipmentAddress"`
	} `json:"postBuyFormData"`
}

type wireAddress struct {
	FullName string `json:"postBuyFormAdrFullName"`
	Company  string `json:"postBuyFormAdrCompany"`
	Street   string `json:"postBuyFormAdrStreet"`
	PostCode string `json:"postBuyFormAdrPostcode"`
	City     string `json:"postBuyFormAdrCity"`
	Phone    string `json:"postBuyFormAdrPhone"`
}

type refundRequest struct {
	SessionID      string `json:"sessionId"`
	DealID         int64  `json:"dealId"`
	ReasonID       int    `json:"reasonId"`
	RefundQuantity int    `json:"refundQuantity"`
}

type refundResponse struct {
	RefundID int64 `json:"refundId"`
}

type cancelRefundRequest struct {
	SessionID string `json:"sessionId"`
	RefundID  int64  `json:"refundId"`
}

type cancelRefundResponse struct {
	CancelStatus bool `json:"cancelStatus"`
}

type refundReasonsRequest struct {
	SessionID string `json:"sessionId"`
}

type refundReasonsResponse struct {
	ReasonsInfo []struct {
		ReasonID   int    `json:"reasonId"`
		ReasonName string `json:"reasonName"`
	} `json:"reasonsInfo"`
}

type waitingFeedbackRequest struct {
	SessionHandle string `json:"sessionHandle"`
	Offset        int    `json:"offset"`
	PackageSize   int    `json:"packageSize"`
}

type waitingFeedbackResponse struct {
	FeWaitList []struct {
		FeItemID           int64  `json:"feItemId"`
		FeToUserID         int64  `json:"feToUserId"`
		FeToUserLogin      string `json:"feToUserLogin"`
		FeOp               int    `json:"feOp"`
		FeAnsCommentType   string `json:"feAnsCommentType"`
		FePossibilityToAdd int    `json:"fePossibilityToAdd"`
	} `json:"feWaitList"`
	FeWaitCount int `json:"feWaitCount"`
}

type feedbackRequest struct {
	SessionHandle string `json:"sessionHandle"`
	FeItemID      int64  `json:"feItemId"`
	FeToUserID    int64  `json:"feToUserId"`
	FeComment     string `json:"feComment"`
	FeCommentType string `json:"feCommentType"`
	FeOp          int    `json:"feOp"`
}

type feedbackResponse struct {
	FeedbackID int64 `json:"feedbackId"`
}

type billingRequest struct {
	SessionHandle string `json:"sessionHandle"`
	ItemID        int64  `json:"itemId"`
}

type billingResponse struct {
	ItemBilling []struct {
		BiName  string  `json:"biName"`
		BiValue float64 `json:"biValue"`
	} `json:"itemBilling"`
}

type itemsInfoRequest struct {
	SessionHandle string  `json:"sessionHandle"`
	ItemsIDArray  []int64 `json:"itemsIdArray"`
}

type itemsInfoResponse struct {
	ArrayItemListInfo []struct {
		ItemInfo struct {
			ItID         int64   `json:"itId"`
			ItName       string  `json:"itName"`
			ItPrice      float64 `json:"itPrice"`
			ItEndingTime int64   `json:"itEndingTime"`
			ItEndingInfo int     `json:"itEndingInfo"`
		} `json:"itemInfo"`
	} `json:"arrayItemListInfo"`
}

type sellItemsRequest struct {
	SessionID  string `json:"sessionId"`
	PageSize   int    `json:"pageSize"`
	PageNumber int    `json:"pageNumber"`
}

type sellItemsResponse struct {
	SellItemsCounter int `json:"sellItemsCounter"`
	SellItemsList    []struct {
		ItemID      int64   `json:"itemId"`
		ItemTitle   string  `json:"itemTitle"`
		ItemPrice   float64 `json:"itemPrice"`
		ItemEndTime int64   `json:"itemEndTime"`
	} `json:"sellItemsList"`
}
