package marketplace

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// BuyerData is the contact data of a buyer as seen by the seller
type BuyerData struct {
	UserID    int64
	Login     string
	FirstName string
	LastName  string
	Company   string
	Email     string
	Phone     string
	Address   string
	City      string
	PostCode  string
}

// ShippingAddress is the delivery address from a post-purchase form
type ShippingAddress struct {
	FullName string
	Company  string
	Address  string
	PostCode string
	City     string
	Phone    string
}

// TransactionDetails is the post-purchase form of a transaction
type TransactionDetails struct {
	TransactionID   int64
	Amount          float64
	MessageToSeller string
	ShippingAddress ShippingAddress
}

// RefundReason is a reason accepted by the refund form
type RefundReason struct {
	ID   int
	Name string
}

// WaitingFeedback is an auction/buyer pair the seller can still rate
type WaitingFeedback struct {
	AuctionID    int64
	BuyerID      int64
	BuyerLogin   string
	Operation    int
	ReceivedType string
	CanBeGiven   bool
}

// AwaitsReplyToPositive reports whether the buyer already left positive
// feedback and the seller's reply is still possible
func (w WaitingFeedback) AwaitsReplyToPositive() bool {
	return w.Operation == feedbackOpToBuyer && w.ReceivedType == commentTypePositive && w.CanBeGiven
}

// AuctionFees are the billing figures of an auction
type AuctionFees struct {
	Fee      float64
	OpenCost float64
}

// AdInfo is the current listing state of an auction
type AdInfo struct {
	AuctionID int64
	Title     string
	Price     float64
	EndDate   time.Time
	HasEnded  bool
}

// Item is a listing offered by the seller
type Item struct {
	AuctionID int64
	Title     string
	Price     float64
	EndDate   time.Time
}

// ErrTransactionNotFound is returned when the marketplace has no form for a transaction
var ErrTransactionNotFound = errors.New("marketplace: transaction not found")

// FetchBuyerData returns the buyer's contact data for a purchase on the auction
func (c *Client) FetchBuyerData(ctx context.Context, userID uint, auctionID, buyerID int64) (*BuyerData, error) {
	var res postBuyDataResponse
	err := c.call(ctx, userID, opGetPostBuyData, func(handle string) interface{} {
		return postBuyDataRequest{SessionHandle: handle, ItemsArray: []int64{auctionID}, BuyerFilterArray: []int64{buyerID}}
	}, &res)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching buyer %d", buyerID)
	}

	for _, item := range res.ItemsPostBuyData {
		for _, u := range item.UsersPostBuyData {
			if u.UserData.UserID != buyerID {
				continue
			}
			return &BuyerData{
				UserID:    u.UserData.UserID,
				Login:     u.UserData.UserLogin,
				FirstName: u.UserData.UserFirstName,
				LastName:  u.UserData.UserLastName,
				Company:   u.UserData.UserCompany,
				Email:     u.UserData.UserEmail,
				Phone:     u.UserData.UserPhone,
				Address:   u.UserData.UserAddress,
				City:      u.UserData.UserCity,
				PostCode:  u.UserData.UserPostcode,
			}, nil
		}
	}
	return nil, errors.Wrapf(ErrBuyerNotFound, "buyer %d on auction %d", buyerID, auctionID)
}

// GetTransactionDetails returns the post-purchase form of a transaction
func (c *Client) GetTransactionDetails(ctx context.Context, userID uint, transactionID int64) (*TransactionDetails, error) {
	var res postBuyFormsResponse
	err := c.call(ctx, userID, opGetPostBuyForms, func(handle string) interface{} {
		return postBuyFormsRequest{SessionID: handle, TransactionsIDsArray: []int64{transactionID}}
	}, &res)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching transaction %d", transactionID)
	}

	for _, form := range res.PostBuyFormData {
		if form.PostBuyFormID != transactionID {
			continue
		}
		addr := form.PostBuyFormShipmentAddress
		return &TransactionDetails{
			TransactionID:   form.PostBuyFormID,
			Amount:          form.PostBuyFormAmount,
			MessageToSeller: form.PostBuyFormMsgToSeller,
			ShippingAddress: ShippingAddress{
				FullName: addr.FullName,
				Company:  addr.Company,
				Address:  addr.Street,
				PostCode: addr.PostCode,
				City:     addr.City,
				Phone:    addr.Phone,
			},
		}, nil
	}
	return nil, errors.Wrapf(ErrTransactionNotFound, "transaction %d", transactionID)
}

// SendRefund files a refund form for the deal and returns the refund id
func (c *Client) SendRefund(ctx context.Context, userID uint, dealID int64, reasonID, quantity int) (int64, error) {
	var res refundResponse
	err := c.call(ctx, userID, opSendRefundForm, func(handle string) interface{} {
		return refundRequest{SessionID: handle, DealID: dealID, ReasonID: reasonID, RefundQuantity: quantity}
	}, &res)
	if err != nil {
		return 0, errors.Wrapf(err, "sending refund for deal %d", dealID)
	}
	return res.RefundID, nil
}

// CancelRefund withdraws a refund form. A refund the marketplace no longer
// knows or already cancelled yields false without error.
func (c *Client) CancelRefund(ctx context.Context, userID uint, refundID int64) (bool, error) {
	var res cancelRefundResponse
	err := c.call(ctx, userID, opCancelRefundForm, func(handle string) interface{} {
		return cancelRefundRequest{SessionID: handle, RefundID: refundID}
	}, &res)
	if HasFault(err, FaultIncorrectRefundID, FaultCancelled) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "cancelling refund %d", refundID)
	}
	return res.CancelStatus, nil
}

// GetRefundReasons lists the reasons the refund form accepts
func (c *Client) GetRefundReasons(ctx context.Context, userID uint) ([]RefundReason, error) {
	var res refundReasonsResponse
	err := c.call(ctx, userID, opGetRefundsReasons, func(handle string) interface{} {
		return refundReasonsRequest{SessionID: handle}
	}, &res)
	if err != nil {
		return nil, errors.Wrap(err, "fetching refund reasons")
	}

	reasons := make([]RefundReason, 0, len(res.ReasonsInfo))
	for _, r := range res.ReasonsInfo {
		reasons = append(reasons, RefundReason{ID: r.ReasonID, Name: r.ReasonName})
	}
	return reasons, nil
}

// GetWaitingFeedback returns every pending feedback of the seller, fetching page by page
func (c *Client) GetWaitingFeedback(ctx context.Context, userID uint) ([]WaitingFeedback, error) {
	var waiting []WaitingFeedback
	for offset := 0; ; offset += c.opts.FeedbackPageSize {
		var res waitingFeedbackResponse
		err := c.call(ctx, userID, opGetWaitingFeedbacks, func(handle string) interface{} {
			return waitingFeedbackRequest{SessionHandle: handle, Offset: offset, PackageSize: c.opts.FeedbackPageSize}
		}, &res)
		if err != nil {
			return nil, errors.Wrap(err, "fetching waiting feedback")
		}

		for _, f := range res.FeWaitList {
			waiting = append(waiting, WaitingFeedback{
				AuctionID:    f.FeItemID,
				BuyerID:      f.FeToUserID,
				BuyerLogin:   f.FeToUserLogin,
				Operation:    f.FeOp,
				ReceivedType: strings.ToUpper(f.FeAnsCommentType),
				CanBeGiven:   f.FePossibilityToAdd == 1,
			})
		}

		if len(res.FeWaitList) < c.opts.FeedbackPageSize {
			return waiting, nil
		}
	}
}

// GivePositiveFeedback rates the buyer positively for the auction and returns the feedback id
func (c *Client) GivePositiveFeedback(ctx context.Context, userID uint, auctionID, buyerID int64, comment string) (int64, error) {
	var res feedbackResponse
	err := c.call(ctx, userID, opFeedback, func(handle string) interface{} {
		return feedbackRequest{
			SessionHandle: handle,
			FeItemID:      auctionID,
			FeToUserID:    buyerID,
			FeComment:     comment,
			FeCommentType: commentTypePositive,
			FeOp:          feedbackOpToBuyer,
		}
	}, &res)
	if err != nil {
		return 0, errors.Wrapf(err, "giving feedback to buyer %d on auction %d", buyerID, auctionID)
	}
	return res.FeedbackID, nil
}

// UpdateAuctionFees returns the billing figures of the auction. An auction the
// marketplace does not know yields zero fees without error.
func (c *Client) UpdateAuctionFees(ctx context.Context, userID uint, auctionID int64) (AuctionFees, error) {
	var res billingResponse
	err := c.call(ctx, userID, opGetMyBillingItem, func(handle string) interface{} {
		return billingRequest{SessionHandle: handle, ItemID: auctionID}
	}, &res)
	if HasFault(err, FaultInvalidItemID) {
		return AuctionFees{}, nil
	}
	if err != nil {
		return AuctionFees{}, errors.Wrapf(err, "fetching fees of auction %d", auctionID)
	}

	var fees AuctionFees
	for _, entry := range res.ItemBilling {
		// Billing names are free text; the opening charge is the only one called out
		if strings.Contains(strings.ToLower(entry.BiName), "open") {
			fees.OpenCost += entry.BiValue
		} else {
			fees.Fee += entry.BiValue
		}
	}
	return fees, nil
}

// RefreshAd returns the current listing state of the auction
func (c *Client) RefreshAd(ctx context.Context, userID uint, auctionID int64) (*AdInfo, error) {
	var res itemsInfoResponse
	err := c.call(ctx, userID, opGetItemsInfo, func(handle string) interface{} {
		return itemsInfoRequest{SessionHandle: handle, ItemsIDArray: []int64{auctionID}}
	}, &res)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching auction %d", auctionID)
	}

	for _, info := range res.ArrayItemListInfo {
		item := info.ItemInfo
		if item.ItID != auctionID {
			continue
		}
		return &AdInfo{
			AuctionID: item.ItID,
			Title:     item.ItName,
			Price:     item.ItPrice,
			EndDate:   time.Unix(item.ItEndingTime, 0).UTC(),
			HasEnded:  item.ItEndingInfo != 1,
		}, nil
	}
	return nil, errors.Wrapf(&Fault{Code: FaultInvalidItemID}, "auction %d", auctionID)
}

// ListMyItems returns every listing the seller currently offers
func (c *Client) ListMyItems(ctx context.Context, userID uint) ([]Item, error) {
	var items []Item
	for page := 0; ; page++ {
		var res sellItemsResponse
		err := c.call(ctx, userID, opGetMySellItems, func(handle string) interface{} {
			return sellItemsRequest{SessionID: handle, PageSize: c.opts.SellItemsPage, PageNumber: page}
		}, &res)
		if err != nil {
			return nil, errors.Wrap(err, "listing sell items")
		}

		for _, it := range res.SellItemsList {
			items = append(items, Item{
				AuctionID: it.ItemID,
				Title:     it.ItemTitle,
				Price:     it.ItemPrice,
				EndDate:   time.Unix(it.ItemEndTime, 0).UTC(),
			})
		}

		if len(res.SellItemsList) < c.opts.SellItemsPage {
			return items, nil
		}
	}
}
